package dashboard

import "html/template"

const pageStyle = `<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 60rem; color: #222; }
h1 { font-size: 1.4rem; } h2 { font-size: 1.1rem; margin-top: 1.5rem; }
table { border-collapse: collapse; } td, th { padding: .3rem .8rem; border: 1px solid #ddd; text-align: left; }
.ok { color: #1a7f37; } .bad { color: #cf222e; }
nav a { margin-right: 1rem; }
</style>`

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><title>GitHub Relay</title>` + pageStyle + `</head><body>
<h1>GitHub → Telegram Relay</h1>
<nav><a href="/status">Status</a><a href="/telegram-status">Telegram</a><a href="/api/status">API</a></nav>
<p>Relaying GitHub webhook events for <b>{{.Info.GitHubUsername}}</b> to {{.Info.AllowedChats}} chat(s).</p>
<p>Webhook endpoint: <code>POST {{.Info.WebhookAddr}}/webhook</code></p>
<p>Live event feed: <code>ws://…/ws</code> (send <code>{"type":"subscribe","events":[…]}</code> to filter).</p>
</body></html>`))

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html><head><title>Status - GitHub Relay</title>` + pageStyle + `</head><body>
<h1>Relay Status</h1>
<nav><a href="/">Home</a><a href="/telegram-status">Telegram</a></nav>
<h2>Activity</h2>
<table>
<tr><th>Uptime</th><td>{{.Snap.Uptime}}</td></tr>
<tr><th>Webhooks received</th><td>{{.Snap.WebhooksReceived}}</td></tr>
<tr><th>Webhooks rejected</th><td>{{.Snap.WebhooksRejected}}</td></tr>
<tr><th>Commands handled</th><td>{{.Snap.CommandsHandled}} ({{.Snap.CommandErrors}} failed)</td></tr>
<tr><th>Notifications sent</th><td>{{.Snap.NotificationsSent}} ({{.Snap.NotifyFailures}} failed)</td></tr>
{{if .Snap.LastWebhookAt}}<tr><th>Last webhook</th><td>{{.Snap.LastWebhookAt.Format "2006-01-02 15:04:05 UTC"}}</td></tr>{{end}}
{{if .Snap.LastCommandAt}}<tr><th>Last command</th><td>{{.Snap.LastCommandAt.Format "2006-01-02 15:04:05 UTC"}}</td></tr>{{end}}
</table>
<h2>Configuration</h2>
<table>
<tr><th>GitHub account</th><td>{{.Info.GitHubUsername}}</td></tr>
<tr><th>Allowed chats</th><td>{{.Info.AllowedChats}}</td></tr>
<tr><th>Rate limit</th><td>{{.Tunables.RateLimit.Requests}} req / {{.Tunables.RateLimit.Window}}</td></tr>
<tr><th>Notify push</th><td>{{.Tunables.Notify.Push}}</td></tr>
<tr><th>Notify issues</th><td>{{.Tunables.Notify.Issues}}</td></tr>
<tr><th>Notify pull requests</th><td>{{.Tunables.Notify.PullRequests}}</td></tr>
<tr><th>Notify releases</th><td>{{.Tunables.Notify.Releases}}</td></tr>
</table>
</body></html>`))

var telegramTmpl = template.Must(template.New("telegram").Parse(`<!DOCTYPE html>
<html><head><title>Telegram - GitHub Relay</title>` + pageStyle + `</head><body>
<h1>Telegram Transport</h1>
<nav><a href="/">Home</a><a href="/status">Status</a></nav>
<p>Connection: {{if .Snap.TelegramConnected}}<span class="ok">connected</span>{{else}}<span class="bad">disconnected</span>{{end}}
{{with .Snap.TelegramDetail}}({{.}}){{end}}</p>
{{if .HasSend}}
<p>Last send: {{.LastSendAt.Format "2006-01-02 15:04:05 UTC"}}
{{if .LastSendErr}}<span class="bad">{{.LastSendErr}}</span>{{else}}<span class="ok">ok</span>{{end}}</p>
{{else}}<p>No sends attempted yet.</p>{{end}}
{{if .History}}
<h2>Recent broadcasts</h2>
<table><tr><th>Time</th><th>Event</th><th>Repo</th><th>Chats</th><th>Failed</th></tr>
{{range .History}}<tr><td>{{.At.Format "15:04:05"}}</td><td>{{.Event}}</td><td>{{.Repo}}</td><td>{{.Chats}}</td><td>{{.Failed}}</td></tr>{{end}}
</table>
{{end}}
{{if .Deliveries}}
<h2>Delivery history</h2>
<table><tr><th>Time</th><th>Event</th><th>Repo</th><th>Chats</th><th>Failed</th></tr>
{{range .Deliveries}}<tr><td>{{.At.Format "2006-01-02 15:04"}}</td><td>{{.Event}}</td><td>{{.Repo}}</td><td>{{.Chats}}</td><td>{{.Failed}}</td></tr>{{end}}
</table>
{{end}}
</body></html>`))
