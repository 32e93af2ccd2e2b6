package sandbox

import "strings"

const (
	// ReadbackExpr evaluates to the markup of the output container.
	ReadbackExpr = "__sandbox.output()"
	// ConsoleExpr evaluates to an array of captured console lines.
	ConsoleExpr = "__sandbox.logs()"
)

// prelude defines a minimal document with the output container, a captured
// console and a virtual-time setTimeout. It is plain ES5 so every backend
// can evaluate it.
const prelude = `var __sandbox = (function (g) {
  "use strict";
  var logs = [];
  var timers = [];
  var timerSeq = 0;
  var clock = 0;
  var VOID = { br: true, hr: true, img: true, input: true, meta: true, link: true };

  function has(o, k) { return Object.prototype.hasOwnProperty.call(o, k); }
  function escapeText(s) {
    return String(s).replace(/&/g, "&amp;").replace(/</g, "&lt;").replace(/>/g, "&gt;");
  }
  function escapeAttr(s) { return escapeText(s).replace(/"/g, "&quot;"); }
  function decode(s) {
    return s.replace(/&lt;/g, "<").replace(/&gt;/g, ">").replace(/&quot;/g, "\"").replace(/&amp;/g, "&");
  }
  function kebab(k) { return k.replace(/[A-Z]/g, function (c) { return "-" + c.toLowerCase(); }); }
  function notNode() { return new TypeError("parameter 1 is not of type 'Node'"); }

  function Text(value) { this.nodeType = 3; this.data = String(value); }
  Object.defineProperty(Text.prototype, "textContent", {
    get: function () { return this.data; },
    set: function (v) { this.data = String(v); }
  });
  Object.defineProperty(Text.prototype, "outerHTML", {
    get: function () { return escapeText(this.data); }
  });

  function Markup(html) { this.nodeType = 0; this.html = html; }
  Object.defineProperty(Markup.prototype, "outerHTML", {
    get: function () { return this.html; }
  });

  function Element(tag) {
    this.nodeType = 1;
    this.tagName = String(tag).toUpperCase();
    this.attrs = {};
    this.attrOrder = [];
    this.style = {};
    this.nodes = [];
  }
  Element.prototype.setAttribute = function (name, value) {
    name = String(name).toLowerCase();
    if (!has(this.attrs, name)) { this.attrOrder.push(name); }
    this.attrs[name] = String(value);
  };
  Element.prototype.getAttribute = function (name) {
    name = String(name).toLowerCase();
    return has(this.attrs, name) ? this.attrs[name] : null;
  };
  Element.prototype.removeAttribute = function (name) {
    name = String(name).toLowerCase();
    delete this.attrs[name];
    this.attrOrder = this.attrOrder.filter(function (n) { return n !== name; });
  };
  Element.prototype.appendChild = function (child) {
    if (child === null || typeof child !== "object" || typeof child.nodeType !== "number") { throw notNode(); }
    this.nodes.push(child);
    return child;
  };
  Element.prototype.append = function () {
    for (var i = 0; i < arguments.length; i++) {
      var a = arguments[i];
      this.nodes.push(a !== null && typeof a === "object" && typeof a.nodeType === "number" ? a : new Text(a));
    }
  };
  Element.prototype.insertAdjacentHTML = function (where, html) {
    var node = new Markup(String(html));
    if (String(where).toLowerCase() === "afterbegin") { this.nodes.unshift(node); } else { this.nodes.push(node); }
  };
  Object.defineProperty(Element.prototype, "id", {
    get: function () { return this.getAttribute("id") || ""; },
    set: function (v) { this.setAttribute("id", v); }
  });
  Object.defineProperty(Element.prototype, "className", {
    get: function () { return this.getAttribute("class") || ""; },
    set: function (v) { this.setAttribute("class", v); }
  });
  Object.defineProperty(Element.prototype, "childNodes", {
    get: function () { return this.nodes.slice(); }
  });
  Object.defineProperty(Element.prototype, "children", {
    get: function () { return this.nodes.filter(function (n) { return n.nodeType === 1; }); }
  });
  Object.defineProperty(Element.prototype, "innerHTML", {
    get: function () { return this.nodes.map(function (n) { return n.outerHTML; }).join(""); },
    set: function (v) { v = String(v); this.nodes = v === "" ? [] : [new Markup(v)]; }
  });
  var textProp = {
    get: function () { return decode(this.innerHTML.replace(/<[^>]*>/g, "")); },
    set: function (v) { v = String(v); this.nodes = v === "" ? [] : [new Text(v)]; }
  };
  Object.defineProperty(Element.prototype, "textContent", textProp);
  Object.defineProperty(Element.prototype, "innerText", textProp);
  Object.defineProperty(Element.prototype, "outerHTML", {
    get: function () {
      var tag = this.tagName.toLowerCase();
      var self = this;
      var out = "<" + tag;
      var styles = Object.keys(this.style).filter(function (k) {
        return self.style[k] !== undefined && self.style[k] !== null && self.style[k] !== "";
      });
      this.attrOrder.forEach(function (name) {
        if (name === "style" && styles.length > 0) { return; }
        out += " " + name + "=\"" + escapeAttr(self.attrs[name]) + "\"";
      });
      if (styles.length > 0) {
        out += " style=\"" + escapeAttr(styles.map(function (k) { return kebab(k) + ": " + self.style[k]; }).join("; ")) + "\"";
      }
      out += ">";
      if (has(VOID, tag)) { return out; }
      return out + this.innerHTML + "</" + tag + ">";
    }
  });

  var body = new Element("body");
  var output = new Element("div");
  output.id = "` + OutputElementID + `";
  body.appendChild(output);

  function find(node, id) {
    if (node.nodeType !== 1) { return null; }
    if (node.getAttribute("id") === id) { return node; }
    for (var i = 0; i < node.nodes.length; i++) {
      var hit = find(node.nodes[i], id);
      if (hit) { return hit; }
    }
    return null;
  }

  var document = {
    body: body,
    getElementById: function (id) { return find(body, String(id)); },
    querySelector: function (sel) {
      sel = String(sel);
      if (sel.charAt(0) === "#") { return find(body, sel.slice(1)); }
      if (sel === "body") { return body; }
      return null;
    },
    createElement: function (tag) { return new Element(tag); },
    createTextNode: function (text) { return new Text(text); },
    write: function () {
      for (var i = 0; i < arguments.length; i++) { output.nodes.push(new Markup(String(arguments[i]))); }
    }
  };

  function format(args) {
    var parts = [];
    for (var i = 0; i < args.length; i++) {
      var a = args[i];
      if (typeof a === "string") { parts.push(a); continue; }
      try {
        var s = JSON.stringify(a);
        parts.push(s === undefined ? String(a) : s);
      } catch (e) {
        parts.push(String(a));
      }
    }
    return parts.join(" ");
  }
  function capture() { logs.push(format(arguments)); }

  function describe(err) {
    if (err !== null && typeof err === "object" && "message" in err) {
      var name = err.name && err.name !== "Error" ? err.name + ": " : "";
      return name + err.message;
    }
    return String(err);
  }
  function fail(err) {
    var box = new Element("div");
    box.className = "sandbox-error";
    box.textContent = "` + ErrorMarker + `" + describe(err);
    output.appendChild(box);
  }

  function drain() {
    var runs = 0;
    while (timers.length > 0 && runs < 1000) {
      timers.sort(function (a, b) { return a.at - b.at || a.id - b.id; });
      var t = timers.shift();
      clock = t.at;
      runs++;
      try { t.fn.apply(null, t.args); } catch (err) { fail(err); }
    }
  }

  g.document = document;
  g.window = g;
  g.console = { log: capture, info: capture, warn: capture, error: capture, debug: capture };
  g.alert = function (msg) { logs.push("alert: " + String(msg)); };
  g.setTimeout = function (fn, delay) {
    if (typeof fn !== "function") { return 0; }
    timerSeq++;
    timers.push({ id: timerSeq, fn: fn, at: clock + (Number(delay) || 0), args: Array.prototype.slice.call(arguments, 2) });
    return timerSeq;
  };
  g.clearTimeout = function (id) {
    timers = timers.filter(function (t) { return t.id !== id; });
  };

  return {
    output: function () { return output.innerHTML; },
    logs: function () { return logs.slice(); },
    fail: fail,
    drain: drain
  };
})(typeof globalThis !== "undefined" ? globalThis : this);
`

// Wrap returns a script that sets up the document, runs code with runtime
// errors captured into the output container, then flushes pending timers.
func Wrap(code string) string {
	var b strings.Builder
	b.WriteString(prelude)
	b.WriteString("try {\n")
	b.WriteString(code)
	b.WriteString("\n} catch (__err) {\n  __sandbox.fail(__err);\n}\n__sandbox.drain();\n")
	return b.String()
}
