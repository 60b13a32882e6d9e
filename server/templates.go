package server

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var templateFiles embed.FS

var pageTitles = map[string]string{
	"home":      "Accueil",
	"login":     "Connexion",
	"register":  "Créer un compte",
	"passcode":  "Code secret",
	"dashboard": "Tableau de bord",
	"profile":   "Mon profil",
	"requests":  "Mes demandes",
	"bills":     "Mes factures",
}

var pageFuncs = template.FuncMap{
	"title": func(page string) string {
		if title, ok := pageTitles[page]; ok {
			return title
		}
		return page
	},
}

// ParseTemplate parses one of the embedded page templates.
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(templateFiles, "templates/"+name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Funcs(pageFuncs).Parse(string(content))
}
