package server

import "strings"

// Paths reserved by the dev server.
const (
	LiveReloadPath   = "/__livereload"
	LiveReloadScript = "/__livereload.js"
)

// scriptTag is injected into every served HTML page.
const scriptTag = `<script src="` + LiveReloadScript + `" async></script>`

const clientJS = `(function () {
  var notify = __NOTIFY__;
  var banner;

  function show(text) {
    if (!notify) return;
    if (!banner) {
      banner = document.createElement('div');
      banner.style.cssText = 'position:fixed;top:0;right:0;z-index:2147483647;' +
        'padding:6px 12px;font:12px sans-serif;background:#1d2129;color:#fff;';
      document.body.appendChild(banner);
    }
    banner.textContent = text;
    clearTimeout(banner.timer);
    banner.timer = setTimeout(function () { banner.remove(); banner = null; }, 1500);
  }

  function injectCSS(target) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    var swapped = false;
    links.forEach(function (link) {
      var url = new URL(link.href, window.location.href);
      if (url.pathname !== target) return;
      url.searchParams.set('livereload', Date.now());
      link.href = url.toString();
      swapped = true;
    });
    if (!swapped) window.location.reload();
    else show('Injected ' + target);
  }

  function connect() {
    var protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
    var ws = new WebSocket(protocol + '//' + window.location.host + '__PATH__');

    ws.onopen = function () { show('Connected'); };

    ws.onmessage = function (event) {
      var message = JSON.parse(event.data);
      switch (message.type) {
        case 'full_reload':
          window.location.reload();
          break;
        case 'css_update':
          injectCSS(message.target);
          break;
      }
    };

    ws.onclose = function () { setTimeout(connect, 1000); };
  }

  connect();
})();
`

// clientScript renders the live-reload client. With notify set the page
// shows a short banner on connect and on CSS injection.
func clientScript(notify bool) string {
	flag := "false"
	if notify {
		flag = "true"
	}
	return strings.NewReplacer("__NOTIFY__", flag, "__PATH__", LiveReloadPath).Replace(clientJS)
}
