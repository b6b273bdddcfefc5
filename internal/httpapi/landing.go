package httpapi

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Study RAG Server</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; display: flex; align-items: center; justify-content: center; }
  .card { max-width: 640px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { font-size: 1.75rem; margin-bottom: 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.75rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.25rem 0 0.5rem; }
  .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #a5b4fc; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; font-size: 0.85rem; }
</style>
</head>
<body>
<div class="card">
  <h1>Study RAG Server</h1>
  <p class="subtitle">Indexes study resources per subject and topic and answers questions with cited sources.</p>

  <div class="section-title">Endpoints</div>
  <p><span class="endpoint">POST /index</span> - chunk, embed and store resources</p>
  <p><span class="endpoint">POST /answer</span> - answer a question from ranked chunks</p>
  <p><span class="endpoint">POST /search</span> - rank the chunks of a stored index</p>
  <p><span class="endpoint">GET /health</span> - health check</p>
  <p><span class="endpoint">/mcp</span> - MCP Streamable HTTP</p>

  <div class="section-title">Example</div>
  <pre><code>curl -X POST localhost:8080/search -d '{"subjectName":"Calculus","topicName":"Limits","query":"epsilon-delta"}'</code></pre>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
