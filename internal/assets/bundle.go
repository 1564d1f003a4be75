package assets

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/transform"
)

const runtimeHeader = `(function () {
var __assetpipe = {
  style: function (css) {
    if (typeof document === "undefined") return;
    var el = document.createElement("style");
    el.textContent = css;
    document.head.appendChild(el);
  }
};
var modules = {
`

const runtimeLoader = `};
var cache = {};
function load(id) {
  if (cache[id]) return cache[id].exports;
  var def = modules[id];
  if (!def) throw new Error("module not bundled: " + id);
  var module = cache[id] = { id: id, exports: {} };
  if (HOT) module.hot = { accepted: false, accept: function () { module.hot.accepted = true; } };
  def[0].call(module.exports, module, module.exports, function (spec) {
    var target = def[1][spec];
    if (target === undefined) throw new Error("cannot find module " + JSON.stringify(spec) + " from " + id);
    return load(target);
  });
  return module.exports;
}
`

const hotClient = `(function () {
  if (typeof EventSource === "undefined") return;
  var source = new EventSource(EVENTS_URL);
  source.onmessage = function (msg) {
    var ev = JSON.parse(msg.data);
    if (ev.type === "css-update") {
      var links = document.querySelectorAll("link[rel=stylesheet]");
      for (var i = 0; i < links.length; i++) {
        var href = links[i].getAttribute("href").split("?")[0];
        if (href === ev.target) links[i].setAttribute("href", href + "?t=" + Date.now());
      }
    } else if (ev.type === "reload") {
      location.reload();
    } else if (ev.type === "error") {
      console.error("[assetpipe] " + ev.target);
    }
  };
})();
`

// EventsPath is where the dev server publishes live-reload events, relative
// to the public base path.
const EventsPath = "__assetpipe/events"

// bundle assembles the JS view of every module into one script. The output
// only depends on module order and contents.
func bundle(modules []*module, entries []string, hot bool, publicPath string) []byte {
	var buf bytes.Buffer
	buf.WriteString(runtimeHeader)

	for _, m := range modules {
		buf.Write(quote(m.path))
		buf.WriteString(": [function (module, exports, require) {\n")
		buf.Write(m.js())
		buf.WriteString("\n}, ")
		buf.Write(quote(m.specs))
		buf.WriteString("],\n")
	}

	hotFlag := "false"
	if hot {
		hotFlag = "true"
	}
	buf.WriteString(strings.ReplaceAll(runtimeLoader, "HOT", hotFlag))
	for _, id := range entries {
		buf.WriteString("load(")
		buf.Write(quote(id))
		buf.WriteString(");\n")
	}
	buf.WriteString("})();\n")

	if hot {
		buf.WriteString(strings.ReplaceAll(hotClient, "EVENTS_URL", string(quote(URL(publicPath, EventsPath)))))
	}
	return buf.Bytes()
}

// js returns the code a module contributes to the bundle.
func (m *module) js() []byte {
	if m.err != nil {
		return []byte("console.error(" + string(quote(m.err.Error())) + ");")
	}
	if m.asset.Kind == transform.KindScript {
		return m.asset.Contents
	}
	return m.asset.Module
}

func quote(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
