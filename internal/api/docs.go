package api

import "strings"

// docsPage renders the API reference. The header links to the live badge
// stream only when the daemon serves one.
func docsPage(streams bool) string {
	links := `<a href="/health">health</a><a href="/api/v1/tabs">tabs</a>`
	if streams {
		links += `<a href="/api/v1/events?feeds=badge">badge stream (SSE)</a>`
	}
	return strings.Replace(docsTemplate, "{{links}}", links, 1)
}

const docsTemplate = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>mediasniff API</title>
  <link href="https://unpkg.com/@stoplight/elements@9.0.0/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@9.0.0/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; }
    nav { display: flex; gap: 16px; padding: 8px 16px; background: #161b22; font: 12px -apple-system, 'Segoe UI', sans-serif; }
    nav a { color: #58a6ff; text-decoration: none; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <nav>{{links}}</nav>
  <elements-api
    apiDescriptionUrl="/openapi.json"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`
