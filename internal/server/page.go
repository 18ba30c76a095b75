package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>WiFi Position Collector</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
<main class="container">
    <h1>WiFi Position Collector</h1>
    <article>
        <p><strong id="state">...</strong> <span id="label"></span></p>
        <p>Entries: <span id="entries">0</span> &middot; Stations: <span id="stations">0</span></p>
        <p>Prediction: <strong id="prediction">-</strong></p>
        <p><small id="error"></small></p>
    </article>
    <form id="toggle">
        <input name="label" id="label-input" placeholder="Location label">
        <button type="submit" id="toggle-button">Start recording</button>
    </form>
    <div role="group">
        <button class="secondary" onclick="post('/upload')">Upload dataset</button>
        <button class="contrast" onclick="if (confirm('Clear dataset?')) post('/clear')">Clear</button>
    </div>
</main>
<script>
async function post(path, body) {
    await fetch(path, {method: 'POST', body: body});
    refresh();
}
async function refresh() {
    const st = await (await fetch('/status')).json();
    document.getElementById('state').textContent = st.recording ? 'REC' : 'IDLE';
    document.getElementById('label').textContent = st.label ? '(' + st.label + ')' : '';
    document.getElementById('entries').textContent = st.dataset_entries;
    document.getElementById('stations').textContent = st.visible_stations;
    document.getElementById('prediction').textContent = st.prediction || '-';
    document.getElementById('error').textContent = st.last_error || '';
    document.getElementById('toggle-button').textContent = st.recording ? 'Stop recording' : 'Start recording';
}
document.getElementById('toggle').addEventListener('submit', (e) => {
    e.preventDefault();
    post('/toggle', new URLSearchParams(new FormData(e.target)));
});
refresh();
setInterval(refresh, 1000);
</script>
</body>
</html>`
