package server

import "net/http"

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Stakeboard</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  :root {
    --bg: #09090b; --surface: #18181b; --surface-hover: #27272a;
    --border: rgba(99,102,241,0.14); --border-strong: rgba(99,102,241,0.3);
    --text: #fafafa; --text-dim: #a1a1aa; --text-muted: #52525b;
    --accent: #6366f1; --accent-light: #818cf8; --accent-dim: rgba(99,102,241,0.15);
    --green: #22c55e; --red: #ef4444; --amber: #f59e0b;
  }
  body {
    font-family: -apple-system, 'SF Pro Display', 'Segoe UI', system-ui, sans-serif;
    background: var(--bg); color: var(--text);
    min-height: 100vh; padding: 40px 24px;
  }
  .container { max-width: 880px; margin: 0 auto; }
  .mono { font-family: 'SF Mono', 'Menlo', monospace; }

  .header {
    display: flex; align-items: center; gap: 16px;
    margin-bottom: 32px; padding-bottom: 24px;
    border-bottom: 1px solid var(--border);
  }
  .header-text h1 {
    font-size: 26px; font-weight: 800; letter-spacing: -0.5px;
    background: linear-gradient(135deg, var(--accent-light) 0%, var(--accent) 100%);
    -webkit-background-clip: text; -webkit-text-fill-color: transparent;
  }
  .header-text .subtitle { font-size: 12px; color: var(--text-muted); margin-top: 2px; }
  .header .spacer { flex: 1; }
  .status-pill {
    display: flex; align-items: center; gap: 8px;
    font-size: 12px; font-weight: 600; padding: 6px 14px; border-radius: 20px;
    color: var(--text-dim); background: var(--surface); border: 1px solid var(--border);
  }
  .status-pill.on { color: var(--green); background: rgba(34,197,94,0.08); border-color: rgba(34,197,94,0.15); }
  .status-dot { width: 7px; height: 7px; border-radius: 50%; background: currentColor; }

  .banner {
    display: none; margin-bottom: 20px; padding: 12px 16px; border-radius: 12px;
    font-size: 13px; border: 1px solid;
  }
  .banner.warn { display: block; color: var(--amber); background: rgba(245,158,11,0.08); border-color: rgba(245,158,11,0.2); }
  .banner.hint { display: block; color: var(--text-dim); background: var(--surface); border-color: var(--border); }

  .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 16px; margin-bottom: 24px; }
  .card {
    background: var(--surface); border: 1px solid var(--border);
    border-radius: 16px; padding: 20px;
  }
  .card .label { font-size: 11px; color: var(--text-muted); text-transform: uppercase; letter-spacing: 1px; }
  .card .value { font-size: 22px; font-weight: 700; margin-top: 8px; }
  .card .unit { font-size: 12px; color: var(--text-dim); margin-left: 4px; }

  .panel { background: var(--surface); border: 1px solid var(--border); border-radius: 16px; padding: 24px; margin-bottom: 20px; }
  .panel h2 { font-size: 14px; font-weight: 700; margin-bottom: 16px; }
  .row { display: flex; gap: 12px; align-items: center; flex-wrap: wrap; }
  input[type=text] {
    flex: 1; min-width: 160px; padding: 10px 14px; border-radius: 10px;
    background: var(--bg); color: var(--text); border: 1px solid var(--border-strong);
    font-family: 'SF Mono', 'Menlo', monospace; font-size: 14px;
  }
  input[type=text]:disabled { opacity: 0.4; }
  button {
    padding: 10px 18px; border-radius: 10px; border: none; cursor: pointer;
    font-weight: 600; font-size: 13px; color: #fff; background: var(--accent);
  }
  button.secondary { background: var(--surface-hover); color: var(--text); border: 1px solid var(--border-strong); }
  button:disabled { opacity: 0.35; cursor: not-allowed; }
  .hidden { display: none !important; }

  table { width: 100%; border-collapse: collapse; font-size: 13px; margin-top: 12px; }
  th { text-align: left; color: var(--text-muted); font-weight: 500; padding: 8px 4px; font-size: 11px; text-transform: uppercase; }
  td { padding: 8px 4px; border-top: 1px solid var(--border); }
  .empty { color: var(--text-muted); font-size: 13px; padding: 12px 0; }

  .toast {
    position: fixed; bottom: 24px; right: 24px; max-width: 420px;
    padding: 12px 18px; border-radius: 12px; font-size: 13px;
    background: var(--surface); border: 1px solid var(--border-strong);
    opacity: 0; transform: translateY(8px); transition: all 0.2s ease;
  }
  .toast.show { opacity: 1; transform: translateY(0); }
  .toast.error { color: var(--red); border-color: rgba(239,68,68,0.3); }

  .footer { margin-top: 32px; text-align: center; font-size: 11px; color: var(--text-muted); }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <div class="header-text">
      <h1>Stakeboard</h1>
      <div class="subtitle mono" id="contract">-</div>
    </div>
    <div class="spacer"></div>
    <div class="status-pill" id="conn"><span class="status-dot"></span><span id="conn-text">Not connected</span></div>
  </div>

  <div class="banner" id="network-banner">Wallet is on an unsupported network. Switch networks to continue.</div>
  <div class="banner" id="connect-hint">Connect a wallet to stake. Import a key from the tray or with stakectl.</div>

  <div class="grid">
    <div class="card"><div class="label">Total staked</div><div class="value mono"><span id="total">-</span><span class="unit sym"></span></div></div>
    <div class="card"><div class="label">My stake</div><div class="value mono"><span id="mine">-</span><span class="unit sym"></span></div></div>
    <div class="card"><div class="label">Balance</div><div class="value mono"><span id="balance">-</span><span class="unit sym"></span></div></div>
  </div>

  <div class="panel">
    <h2>Stake</h2>
    <div class="row">
      <input type="text" id="stake-input" placeholder="0.0" autocomplete="off">
      <button id="stake-btn">Stake</button>
      <button class="secondary" id="reveal-btn">Unstake</button>
    </div>
    <div class="row hidden" id="unstake-form" style="margin-top:12px">
      <input type="text" id="unstake-input" placeholder="0.0" autocomplete="off">
      <button id="unstake-btn">Confirm unstake</button>
    </div>
  </div>

  <div class="panel">
    <h2>Rewards</h2>
    <div class="row">
      <div class="mono" style="flex:1;font-size:18px"><span id="rewards">0.0000</span> <span class="unit" id="reward-sym"></span></div>
      <button id="claim-btn">Claim</button>
    </div>
  </div>

  <div class="panel hidden" id="withdraw-panel">
    <h2>Withdrawals <span class="unit" id="pending-count"></span></h2>
    <div class="row"><div style="flex:1"></div><button id="withdraw-btn">Withdraw</button></div>
    <table>
      <thead><tr><th>Amount</th><th>Unlock block</th><th>Status</th></tr></thead>
      <tbody id="requests"></tbody>
    </table>
  </div>

  <div class="panel">
    <h2>Recent submissions</h2>
    <table>
      <thead><tr><th>Action</th><th>Amount</th><th>Outcome</th><th>Tx</th></tr></thead>
      <tbody id="history"></tbody>
    </table>
  </div>

  <div class="footer">Stakeboard &middot; <span id="chain">chain -</span></div>
</div>
<div class="toast" id="toast"></div>

<script>
  const $ = (id) => document.getElementById(id);
  let lastNotice = '';
  let toastTimer = null;

  async function fetchJSON(url, opts) {
    try {
      const res = await fetch(url, opts);
      return await res.json();
    } catch (e) {
      return null;
    }
  }

  function short(s) {
    if (!s) return '-';
    return s.length > 14 ? s.slice(0, 8) + '...' + s.slice(-4) : s;
  }

  function formatWei(wei) {
    if (!wei) return '-';
    const unit = 10n ** 18n;
    const v = BigInt(wei);
    const frac = ((v % unit) * 10000n / unit).toString().padStart(4, '0');
    return (v / unit).toString() + '.' + frac;
  }

  function toast(msg, level) {
    const t = $('toast');
    t.textContent = msg;
    t.className = 'toast show' + (level === 'error' ? ' error' : '');
    clearTimeout(toastTimer);
    toastTimer = setTimeout(() => { t.className = 'toast'; }, 5000);
  }

  function setInput(el, value, enabled) {
    el.disabled = !enabled;
    if (document.activeElement !== el) el.value = value || '';
  }

  function render(v) {
    if (!v) return;
    $('contract').textContent = v.contract || '-';
    $('chain').textContent = v.chain_id ? 'chain ' + v.chain_id : 'chain -';
    $('conn').className = 'status-pill' + (v.connected ? ' on' : '');
    $('conn-text').textContent = v.connected ? short(v.account) : 'Not connected';
    $('network-banner').className = 'banner' + (v.connected && !v.correct_network ? ' warn' : '');
    $('connect-hint').className = 'banner' + (v.connected ? '' : ' hint');

    document.querySelectorAll('.sym').forEach((el) => { el.textContent = v.symbol; });
    $('reward-sym').textContent = v.reward_symbol;
    $('total').textContent = v.total_staked;
    $('mine').textContent = v.my_stake;
    $('balance').textContent = v.balance;
    $('rewards').textContent = v.pending_rewards;

    setInput($('stake-input'), v.stake_text, v.inputs_enabled);
    setInput($('unstake-input'), v.unstake_text, v.inputs_enabled);
    $('stake-btn').disabled = !v.can_stake;
    $('reveal-btn').disabled = !v.can_reveal_unstake;
    $('unstake-form').className = 'row' + (v.show_unstake_form ? '' : ' hidden');
    $('unstake-btn').disabled = !v.can_confirm_unstake;
    $('claim-btn').disabled = !v.can_claim;

    $('withdraw-panel').className = 'panel' + (v.withdraw_visible ? '' : ' hidden');
    $('withdraw-btn').disabled = !v.can_withdraw;
    $('pending-count').textContent = v.pending_withdrawals ? '(' + v.pending_withdrawals + ' pending)' : '';
    const reqs = v.unstake_requests || [];
    $('requests').innerHTML = reqs.length === 0
      ? '<tr><td colspan="3" class="empty">No unstake requests</td></tr>'
      : reqs.map((r) => '<tr><td class="mono">' + r.amount + '</td><td class="mono">' + r.unlock_block +
          '</td><td>' + (r.finished ? 'Withdrawn' : 'Pending') + '</td></tr>').join('');

    if (v.notice) {
      const key = v.notice.at + v.notice.message;
      if (key !== lastNotice) {
        lastNotice = key;
        toast(v.notice.message, v.notice.level);
      }
    }
  }

  async function intent(kind, text) {
    const body = { kind: kind };
    if (text !== undefined) body.text = text;
    return post(body, kind);
  }

  // The field's own value travels with the submit so the amount signed is
  // the one on this screen.
  function submitWith(setKind, el, kind) {
    return post([{ kind: setKind, text: el.value }, { kind: kind }], kind);
  }

  async function post(body, kind) {
    const res = await fetchJSON('/api/intents', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(body),
    });
    if (!res) return;
    if (res.error) {
      if (!kind.startsWith('set_')) toast(res.error, 'error');
      render(res.view);
      return;
    }
    render(res);
  }

  async function refreshHistory() {
    const subs = await fetchJSON('/api/submissions?limit=10');
    if (!subs) return;
    $('history').innerHTML = subs.length === 0
      ? '<tr><td colspan="4" class="empty">No submissions yet</td></tr>'
      : subs.map((s) => '<tr><td>' + s.action + '</td><td class="mono">' + formatWei(s.amount_wei) +
          '</td><td>' + s.outcome + '</td><td class="mono">' + short(s.tx_hash) + '</td></tr>').join('');
  }

  async function refresh() {
    render(await fetchJSON('/api/view'));
    refreshHistory();
  }

  $('stake-input').addEventListener('input', (e) => intent('set_stake_text', e.target.value));
  $('unstake-input').addEventListener('input', (e) => intent('set_unstake_text', e.target.value));
  $('stake-btn').addEventListener('click', () => submitWith('set_stake_text', $('stake-input'), 'submit_stake'));
  $('reveal-btn').addEventListener('click', () => intent('reveal_unstake'));
  $('unstake-btn').addEventListener('click', () => submitWith('set_unstake_text', $('unstake-input'), 'submit_unstake'));
  $('claim-btn').addEventListener('click', () => intent('submit_claim'));
  $('withdraw-btn').addEventListener('click', () => intent('submit_withdraw'));

  refresh();
  setInterval(refresh, 5000);
</script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}
