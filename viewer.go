package main

// viewerPage renders /render.svg and forwards pointer events back to the
// service. The surface is reloaded whenever the websocket reports a new
// render version.
const viewerPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>planbind</title>
<style>
html, body { margin: 0; height: 100%; }
#surface { width: 100vw; height: 100vh; overflow: hidden; }
#surface svg { width: 100%; height: 100%; }
</style>
</head>
<body>
<div id="surface"></div>
<script>
const surface = document.getElementById('surface');
let labelAttr = 'data-label';
let shown = 0;

function post(path, body) {
  return fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)});
}

function norm(s) { return (s || '').trim().toLowerCase(); }

function labeled(target) {
  const el = target.closest('[' + labelAttr + ']');
  if (!el) return null;
  const label = el.getAttribute(labelAttr);
  const peers = Array.from(surface.querySelectorAll('[' + labelAttr + ']'))
    .filter(p => norm(p.getAttribute(labelAttr)) === norm(label));
  return {label: label, index: peers.indexOf(el)};
}

async function reload(version) {
  if (version !== undefined && version <= shown) return;
  const res = await fetch('/render.svg', {cache: 'no-store'});
  surface.innerHTML = await res.text();
  if (version !== undefined) shown = version;
}

let hovered = null;
function same(a, b) { return a && b && norm(a.label) === norm(b.label) && a.index === b.index; }

surface.addEventListener('mouseover', e => {
  const hit = labeled(e.target);
  if (!hit || same(hit, hovered)) return;
  hovered = hit;
  post('/api/events/element', Object.assign({type: 'enter'}, hit));
});
surface.addEventListener('mouseout', e => {
  const hit = labeled(e.target);
  const next = e.relatedTarget ? labeled(e.relatedTarget) : null;
  if (!hit || same(hit, next) || !same(hit, hovered)) return;
  hovered = null;
  post('/api/events/element', Object.assign({type: 'leave'}, hit));
});
surface.addEventListener('click', e => {
  const shape = e.target.closest('.planbind-overlay-shape');
  if (shape) { post('/api/events/polygon', {key: shape.getAttribute('data-key')}); return; }
  const hit = labeled(e.target);
  if (hit) post('/api/events/element', Object.assign({type: 'click'}, hit));
});
surface.addEventListener('wheel', e => { e.preventDefault(); post('/api/events/viewport', {type: 'wheel', deltaY: e.deltaY}); }, {passive: false});
surface.addEventListener('mousedown', e => post('/api/events/viewport', {type: 'down', x: e.clientX, y: e.clientY}));
surface.addEventListener('mousemove', e => { if (e.buttons) post('/api/events/viewport', {type: 'move', x: e.clientX, y: e.clientY}); });
surface.addEventListener('mouseup', () => post('/api/events/viewport', {type: 'up'}));
surface.addEventListener('mouseleave', () => post('/api/events/viewport', {type: 'leave'}));
surface.addEventListener('dblclick', () => post('/api/events/viewport', {type: 'dblclick'}));

fetch('/api/settings').then(r => r.json()).then(s => {
  if (s.floorPlan && s.floorPlan.labelAttribute) labelAttr = s.floorPlan.labelAttribute;
});
reload();

function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = m => { const msg = JSON.parse(m.data); if (msg.type === 'render') reload(msg.version); };
  ws.onclose = () => setTimeout(connect, 2000);
}
connect();
</script>
</body>
</html>
`
