package server

import (
	"bytes"

	"golang.org/x/net/html"
)

// InjectScript inserts snippet right before the last </body> tag of doc.
// Documents without a body end tag get the snippet appended.
func InjectScript(doc []byte, snippet string) []byte {
	offset := bodyEndOffset(doc)
	if offset < 0 {
		out := make([]byte, 0, len(doc)+len(snippet))
		out = append(out, doc...)
		return append(out, snippet...)
	}

	out := make([]byte, 0, len(doc)+len(snippet))
	out = append(out, doc[:offset]...)
	out = append(out, snippet...)
	return append(out, doc[offset:]...)
}

// bodyEndOffset returns the byte offset of the last </body> tag, or -1.
// Tags inside comments, scripts and attribute values are not counted.
func bodyEndOffset(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	pos, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a read error; either way the scan is over.
			return found
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				found = pos
			}
		}
		pos += raw
	}
}
