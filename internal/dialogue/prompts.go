package dialogue

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/memohai/orderbot/internal/catalog"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

type payloadExample struct {
	Name    string
	Phone   string
	Item    string
	Address string
}

type promptData struct {
	Menu    string
	Payment string
	Example payloadExample
}

var examples = map[string]payloadExample{
	LangRussian: {Name: "Имя", Phone: "Телефон", Item: "Товар", Address: "Адрес"},
	LangKazakh:  {Name: "Аты", Phone: "Телефон", Item: "Тауар", Address: "Мекенжай"},
	LangEnglish: {Name: "Name", Phone: "Phone", Item: "Item", Address: "Address"},
}

// Prompts holds the rendered system instruction for each language.
type Prompts struct {
	byLang map[string]string
}

// NewPrompts renders the system instructions with the menu and payment details of c.
func NewPrompts(c *catalog.Catalog) (*Prompts, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	p := &Prompts{byLang: make(map[string]string, len(examples))}
	for lang, example := range examples {
		name := lang + ".tmpl"
		tmpl, err := template.ParseFS(promptFS, "prompts/shared.tmpl", "prompts/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", lang, err)
		}
		var buf bytes.Buffer
		err = tmpl.ExecuteTemplate(&buf, name, promptData{
			Menu:    c.Render(lang),
			Payment: c.PaymentInfo(lang),
			Example: example,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s prompt: %w", lang, err)
		}
		p.byLang[lang] = strings.TrimSpace(buf.String())
	}
	return p, nil
}

// System returns the instruction for lang, falling back to DefaultLanguage.
func (p *Prompts) System(lang string) string {
	return p.byLang[normalizeLanguage(lang)]
}
