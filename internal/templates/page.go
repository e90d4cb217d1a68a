package templates

import "golang.org/x/text/language"

type PageOptions struct {
	Title  string
	Locale language.Tag
}

const styleTag = `<style>
body{margin:0;font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Roboto,sans-serif;background:linear-gradient(135deg,#667eea 0%,#764ba2 100%);min-height:100vh}
.container{max-width:1200px;margin:0 auto;padding:2rem}
.header{text-align:center;color:#fff;margin-bottom:2rem}
.header h1{font-size:2.5rem;margin:0 0 .5rem}
.subtitle{opacity:.9;margin:0 0 1rem}
.health-status{display:inline-flex;gap:1rem;align-items:center;background:rgba(255,255,255,.2);padding:.5rem 1rem;border-radius:20px}
.status-indicator{width:10px;height:10px;border-radius:50%;background:#4ade80}
.controls{display:flex;justify-content:space-between;align-items:center;margin-bottom:1.5rem}
.refresh-button{background:#fff;color:#667eea;border:none;padding:.75rem 1.5rem;border-radius:8px;font-weight:600;cursor:pointer}
.refresh-button:disabled{opacity:.6;cursor:not-allowed}
.user-count{color:#fff}
.error-message{background:#fee2e2;color:#991b1b;padding:1rem;border-radius:8px;margin-bottom:1.5rem}
.loading{text-align:center;color:#fff;padding:3rem}
.spinner{width:40px;height:40px;border:4px solid rgba(255,255,255,.3);border-top-color:#fff;border-radius:50%;margin:0 auto 1rem;animation:spin 1s linear infinite}
@keyframes spin{to{transform:rotate(360deg)}}
.users-grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(280px,1fr));gap:1.5rem}
.user-card{background:#fff;border-radius:12px;padding:1.5rem;display:flex;gap:1rem}
.user-avatar{width:50px;height:50px;border-radius:50%;background:#667eea;color:#fff;display:flex;align-items:center;justify-content:center;font-size:1.5rem;font-weight:700;flex-shrink:0}
.user-name{margin:0 0 .25rem}
.user-email{margin:0 0 .5rem;color:#555}
.user-details{display:flex;gap:.75rem;font-size:.9rem}
.user-created{margin:.5rem 0 0;font-size:.8rem;color:#888}
.empty-state{text-align:center;color:#fff;padding:3rem}
</style>`

// liveScript keeps #app in step with the server-side view. Fragments are
// fetched one at a time and a fragment older than the one on screen is
// dropped, so a slow response can never put back a stale state.
const liveScript = `<script>
(function() {
  var app = document.getElementById('app');
  var root = app.querySelector('.dashboard');
  var view = root ? root.dataset.view : '';
  var applied = root ? Number(root.dataset.version) : 0;
  var swapping = false;
  var pending = false;
  var reconnectAttempts = 0;
  var maxReconnectDelay = 5000;

  function apply(html) {
    var tpl = document.createElement('template');
    tpl.innerHTML = html;
    var next = tpl.content.querySelector('.dashboard');
    if (!next || Number(next.dataset.version) <= applied) {
      return;
    }
    applied = Number(next.dataset.version);
    app.replaceChildren(tpl.content);
  }

  function swap() {
    if (swapping) {
      pending = true;
      return;
    }
    swapping = true;
    fetch('/fragment?view=' + encodeURIComponent(view), {cache: 'no-store'}).then(function(r) {
      if (r.status === 410) {
        window.location.reload();
        return null;
      }
      return r.text();
    }).then(function(html) {
      if (html !== null) {
        apply(html);
      }
    }).catch(function() {}).then(function() {
      swapping = false;
      if (pending) {
        pending = false;
        swap();
      }
    });
  }

  document.addEventListener('submit', function(e) {
    if (!e.target.classList.contains('refresh-form')) {
      return;
    }
    e.preventDefault();
    fetch('/refresh', {
      method: 'POST',
      headers: {'X-Requested-With': 'fetch'},
      body: new URLSearchParams({view: view})
    }).then(function(r) {
      if (r.status === 410) {
        window.location.reload();
        return;
      }
      swap();
    });
  });

  function connect() {
    var protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
    var ws = new WebSocket(protocol + '//' + window.location.host + '/ws?view=' + encodeURIComponent(view));

    ws.onopen = function() {
      reconnectAttempts = 0;
      swap();
    };

    ws.onmessage = function(e) {
      var msg = JSON.parse(e.data);
      if (msg.type === 'state') {
        if (!msg.version || msg.version > applied) {
          swap();
        }
      } else if (msg.type === 'reload') {
        window.location.reload();
      }
    };

    ws.onclose = function() {
      var delay = Math.min(1000 * Math.pow(2, reconnectAttempts), maxReconnectDelay);
      reconnectAttempts++;
      setTimeout(connect, delay);
    };
  }

  connect();
})();
</script>`
