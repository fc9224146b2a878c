// ABOUTME: Template rendering for the web UI
// ABOUTME: Parses embedded templates once and renders assistant markdown with goldmark

package webui

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/warehouse"
)

// Template data types
type threadOption struct {
	ID    string
	Title string
}

type threadsPageData struct {
	Title   string
	User    string
	Threads []threadOption
	Error   string
}

type messageView struct {
	Role    string
	ID      int64
	Content template.HTML
}

type threadPageData struct {
	Title           string
	User            string
	ThreadID        string
	ParentMessageID int64
	TurnToken       string
	Messages        []messageView
	Notice          string
	Query           string
	QueryResult     *warehouse.Result
	QueryError      string
	Error           string
}

var pages = map[string]*template.Template{
	"threads": template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/threads.html")),
	"thread":  template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/thread.html")),
}

// displayTitle is the thread picker label.
func displayTitle(t *store.Thread) string {
	if t.Title == "" {
		return "(untitled)"
	}
	return t.Title
}

// renderMarkdown converts message text to HTML. Raw HTML in the source is
// escaped by goldmark's default renderer.
func (u *UI) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		u.logger.Error("failed to convert markdown", "error", err)
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (u *UI) messageViews(msgs []*store.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			Role:    string(m.Role),
			ID:      m.MessageID,
			Content: u.renderMarkdown(m.Content),
		})
	}
	return views
}

func (u *UI) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := pages[page].Execute(&buf, data); err != nil {
		u.logger.Error("failed to render page", "page", page, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
