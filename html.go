package main

// Simple HTML client for quick testing
const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Duelbox</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; }
  h1 { margin-bottom: 0.5rem; }
  #status { margin-bottom: 1rem; font-size: 0.9rem; }
  #players { margin-top: 1rem; padding: 0; list-style: none; }
  #players li { padding: 0.25rem 0; border-bottom: 1px solid #ddd; }
  #players button { margin-left: 0.5rem; }
  #board { display: none; border-collapse: collapse; margin-top: 1rem; }
  #board td { width: 3rem; height: 3rem; border: 1px solid #333; text-align: center; font-size: 1.5rem; cursor: pointer; }
  #leave, #rematch { display: none; margin-top: 1rem; }
</style>
</head>
<body>
<h1>Duelbox</h1>
<div id="status">Connecting…</div>
<ul id="players"></ul>
<table id="board"></table>
<button id="leave">Leave duel</button>
<button id="rematch">Rematch</button>

<script>
(function() {
  const statusEl = document.getElementById('status');
  const playersEl = document.getElementById('players');
  const boardEl = document.getElementById('board');
  const leaveEl = document.getElementById('leave');
  const rematchEl = document.getElementById('rematch');

  let myId = '';
  let username = '';
  let opponent = null;
  let role = '';
  let myTurn = false;
  let board = emptyBoard();

  function emptyBoard() {
    return [[null, null, null], [null, null, null], [null, null, null]];
  }

  const proto = (location.protocol === 'https:') ? 'wss://' : 'ws://';
  const wsPath = location.pathname.replace(/\/$/, '') + '/ws';
  const ws = new WebSocket(proto + location.host + wsPath);

  function send(msg) {
    ws.send(JSON.stringify(msg));
  }

  function renderBoard() {
    boardEl.innerHTML = '';
    for (let r = 0; r < 3; r++) {
      const row = document.createElement('tr');
      for (let c = 0; c < 3; c++) {
        const cell = document.createElement('td');
        cell.textContent = board[r][c] || '';
        cell.onclick = (function(r, c) {
          return function() { clickCell(r, c); };
        })(r, c);
        row.appendChild(cell);
      }
      boardEl.appendChild(row);
    }
  }

  function winnerOf(b) {
    const lines = [
      [[0,0],[0,1],[0,2]], [[1,0],[1,1],[1,2]], [[2,0],[2,1],[2,2]],
      [[0,0],[1,0],[2,0]], [[0,1],[1,1],[2,1]], [[0,2],[1,2],[2,2]],
      [[0,0],[1,1],[2,2]], [[0,2],[1,1],[2,0]]
    ];
    for (const line of lines) {
      const v = b[line[0][0]][line[0][1]];
      if (v && v === b[line[1][0]][line[1][1]] && v === b[line[2][0]][line[2][1]]) {
        return v;
      }
    }
    return null;
  }

  function clickCell(r, c) {
    if (!opponent || !myTurn || board[r][c]) {
      return;
    }
    board[r][c] = role;
    myTurn = false;
    renderBoard();
    send({ type: 'move', board: board, role: role, opponent: opponent });

    const w = winnerOf(board);
    if (w) {
      send({ type: 'result', role: w, opponent: opponent });
      statusEl.textContent = 'You won as ' + w + '.';
    } else {
      statusEl.textContent = "Waiting on " + opponent.username + "…";
    }
  }

  function startDuel(other, myRole, first) {
    opponent = other;
    role = myRole;
    myTurn = first;
    board = emptyBoard();
    playersEl.style.display = 'none';
    boardEl.style.display = 'table';
    leaveEl.style.display = 'inline';
    rematchEl.style.display = 'inline';
    renderBoard();
    statusEl.textContent = 'Dueling ' + other.username + ' as ' + myRole + '.';
  }

  function endDuel(text) {
    opponent = null;
    myTurn = false;
    playersEl.style.display = 'block';
    boardEl.style.display = 'none';
    leaveEl.style.display = 'none';
    rematchEl.style.display = 'none';
    statusEl.textContent = text;
  }

  leaveEl.onclick = function() {
    if (opponent) {
      send({ type: 'leave', opponent: opponent });
      endDuel('You left the duel.');
    }
  };

  rematchEl.onclick = function() {
    if (opponent) {
      send({ type: 'reset', opponent: opponent });
      board = emptyBoard();
      renderBoard();
    }
  };

  function renderPresence(msg) {
    playersEl.innerHTML = '';
    msg.online.forEach(function(p) {
      if (p.id === myId) {
        return;
      }
      const li = document.createElement('li');
      li.textContent = p.username;
      if (msg.busy.indexOf(p.id) >= 0) {
        li.textContent += ' (busy)';
      } else {
        const btn = document.createElement('button');
        btn.textContent = 'Challenge';
        btn.onclick = function() {
          send({ type: 'challenge', opponent_id: p.id });
          statusEl.textContent = 'Challenged ' + p.username + '…';
        };
        li.appendChild(btn);
      }
      playersEl.appendChild(li);
    });
  }

  ws.onopen = function() {
    statusEl.textContent = 'Connected.';
    username = prompt('Enter your username:') || '';
    if (username) {
      send({ type: 'announce', username: username });
    }
  };

  ws.onmessage = function(event) {
    try {
      const msg = JSON.parse(event.data);

      switch (msg.type) {
      case 'session':
        myId = msg.id;
        break;
      case 'presence':
        renderPresence(msg);
        break;
      case 'challenged':
        if (confirm(msg.player.username + ' challenged you. Accept?')) {
          send({ type: 'challenge_accept', opponent_id: msg.player.id });
          startDuel(msg.player, 'B', false);
        } else {
          send({ type: 'challenge_decline', opponent_id: msg.player.id });
        }
        break;
      case 'challenge_accepted':
        startDuel(msg.player, 'A', true);
        break;
      case 'challenge_declined':
        statusEl.textContent = msg.player.username + ' declined your challenge.';
        break;
      case 'player_busy':
        statusEl.textContent = msg.player.username + ' is already in a duel.';
        break;
      case 'opponent_left':
        endDuel(msg.username + ' left the duel.');
        break;
      case 'move':
        board = msg.board;
        myTurn = true;
        renderBoard();
        statusEl.textContent = 'Your move.';
        break;
      case 'result':
        myTurn = false;
        statusEl.textContent = (msg.role === role) ? 'You won as ' + msg.role + '.' : 'You lost. ' + msg.role + ' wins.';
        break;
      case 'reset':
        board = emptyBoard();
        myTurn = (role === 'B');
        renderBoard();
        statusEl.textContent = 'Rematch started.';
        break;
      }
    } catch (e) {
      console.error('bad message', e);
    }
  };

  ws.onclose = function() {
    endDuel('Disconnected.');
  };

  ws.onerror = function() {
    statusEl.textContent = 'Error with WebSocket.';
  };
})();
</script>
</body>
</html>
`
