package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer превращает готовый агрегат в HTML. Работает только со снимком
// агрегата и не обращается ни к кэшу, ни к API.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе шаблонов: %w", err)
	}

	return &Renderer{templates: templates}, nil
}

type Section struct {
	Item   models.WatchedItem
	Events []models.ActivityEvent
}

type DigestPage struct {
	ID          string
	Title       string
	GeneratedAt time.Time
	Sections    []Section
	Failures    []models.ItemFailure
}

type IndexEntry struct {
	ID          string
	Title       string
	HasData     bool
	GeneratedAt time.Time
	EventCount  int
}

type IndexPage struct {
	Digests            []IndexEntry
	RateLimitRemaining int64
}

func (r *Renderer) RenderDigest(w io.Writer, title string, aggregate *models.DigestAggregate) error {
	page := DigestPage{
		ID:          aggregate.ID,
		Title:       title,
		GeneratedAt: aggregate.GeneratedAt,
		Sections:    groupByItem(aggregate.Events),
		Failures:    aggregate.Failures,
	}

	return r.templates.ExecuteTemplate(w, "digest.html", page)
}

func (r *Renderer) RenderIndex(w io.Writer, page IndexPage) error {
	return r.templates.ExecuteTemplate(w, "index.html", page)
}

// groupByItem группирует события по исходному ресурсу, сохраняя порядок
// агрегата: секции идут в порядке самого свежего события, события внутри
// секции уже отсортированы от новых к старым.
func groupByItem(events []models.ActivityEvent) []Section {
	index := make(map[string]int)

	var sections []Section

	for _, event := range events {
		pos, ok := index[event.Item.URL]
		if !ok {
			pos = len(sections)
			index[event.Item.URL] = pos

			sections = append(sections, Section{Item: event.Item})
		}

		sections[pos].Events = append(sections[pos].Events, event)
	}

	return sections
}
