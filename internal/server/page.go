package server

import (
	"context"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"nftcreator/internal/creator"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Create NFT</title>
{{if .Busy}}<meta http-equiv="refresh" content="2">{{end}}
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
nav { display: flex; justify-content: space-between; color: #555; }
label, input, textarea, button { display: block; width: 100%; margin-bottom: .75rem; }
.spinner { display: inline-block; width: 1rem; height: 1rem; border: 2px solid #ccc; border-top-color: #333; border-radius: 50%; animation: spin 1s linear infinite; }
@keyframes spin { to { transform: rotate(360deg); } }
.error { color: #b00020; }
img { max-width: 100%; }
</style>
</head>
<body>
<nav>
  <strong>Create NFT</strong>
  <span>{{if .Account}}{{.Account}} on chain {{.ChainID}}{{else}}Not connected{{end}}</span>
</nav>

{{if .FormEnabled}}
<form method="post" action="/submit">
  <label for="name">Name</label>
  <input id="name" name="name" value="{{.Name}}">
  <label for="description">Description</label>
  <textarea id="description" name="description" rows="3">{{.Description}}</textarea>
  <button type="submit"{{if .Busy}} disabled{{end}}>Submit</button>
</form>
{{end}}

{{if .Notice}}<p class="error">{{.Notice}}</p>{{end}}

{{if .Busy}}
<p><span class="spinner"></span> {{.Message}}</p>
{{else}}
  {{if .Error}}<p class="error">{{.Error.Message}}</p>{{end}}
  {{if .ImageURL}}<img src="{{.ImageURL}}" alt="generated image">{{end}}
  {{if .MetadataURL}}
  <p>
    <a href="{{.MetadataURL}}">{{.MetadataURL}}</a>
    {{if .Minted}}<br>Minted token {{.TokenID}} in {{.TxHash}}{{else}}<br>Not minted{{end}}
  </p>
  {{end}}
{{end}}
</body>
</html>
`))

type pageData struct {
	creator.View
	// ImageURL is the data URI built from generated image bytes.
	ImageURL    template.URL
	FormEnabled bool
	Notice      string
	Name        string
	Description string
}

func (s *Server) renderPage(w http.ResponseWriter, code int, d creator.Draft, notice string) {
	view := s.creator.View()
	data := pageData{
		View:        view,
		FormEnabled: !s.hmac.Enabled(),
		Notice:      notice,
		Name:        d.Name,
		Description: d.Description,
	}
	if strings.HasPrefix(view.Image, "data:image/") {
		data.ImageURL = template.URL(view.Image)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("render page", zap.Error(err))
	}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, creator.Draft{}, "")
}

func (s *Server) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	draft, err := decodeDraft(w, r)
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, draft, err.Error())
		return
	}

	if _, err := s.creator.Start(context.WithoutCancel(r.Context()), draft); err != nil {
		s.renderPage(w, statusFor(err), draft, errorFor(err).Error.Message)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
