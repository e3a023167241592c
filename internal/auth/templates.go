package auth

// baseCSSVars contains the CSS custom properties of the result page.
const baseCSSVars = `
        :root {
            --bg-deep: #06060a;
            --bg-card: #0d0d14;
            --border: #1a1a2e;
            --text: #e4e4eb;
            --text-muted: #6b6b7a;
            --brand: #1877f2;
            --success: #22c55e;
            --error: #ef4444;
        }
`

// fadeUpAnimationCSS is the entry animation of the card.
const fadeUpAnimationCSS = `
        @keyframes fadeUp {
            from { opacity: 0; transform: translateY(10px); }
            to { opacity: 1; transform: translateY(0); }
        }
`

const resultTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    {{if .RedirectURL}}<meta http-equiv="refresh" content="{{.DelaySeconds}};url={{.RedirectURL}}">{{end}}
    <title>{{.Title}} - inbox</title>
    <style>
` + baseCSSVars + fadeUpAnimationCSS + `
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            background: var(--bg-deep);
            color: var(--text);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            padding: 2rem;
        }

        .card {
            width: 100%;
            max-width: 480px;
            background: var(--bg-card);
            border: 1px solid var(--border);
            border-radius: 16px;
            padding: 2.5rem;
            text-align: center;
            animation: fadeUp 0.4s ease-out;
        }

        .status {
            font-size: 2.5rem;
            margin-bottom: 1rem;
        }

        .status.ok { color: var(--success); }
        .status.fail { color: var(--error); }

        h1 {
            font-size: 1.375rem;
            margin-bottom: 0.75rem;
        }

        p {
            color: var(--text-muted);
            line-height: 1.5;
        }

        .detail {
            margin-top: 1rem;
            font-family: ui-monospace, monospace;
            font-size: 0.875rem;
            color: var(--error);
        }

        .redirect {
            margin-top: 2rem;
            font-size: 0.8125rem;
        }

        .redirect a {
            color: var(--brand);
            text-decoration: none;
        }
    </style>
</head>
<body>
    <div class="card">
        {{if .Success}}<div class="status ok">&#10003;</div>{{else}}<div class="status fail">&#10007;</div>{{end}}
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
        {{if .Detail}}<p class="detail">{{.Detail}}</p>{{end}}
        {{if .RedirectURL}}<p class="redirect">Returning to the dashboard in {{.DelaySeconds}} seconds. <a href="{{.RedirectURL}}">Go now</a></p>{{end}}
    </div>
</body>
</html>
`
