// Package patch builds the document update written back to paperless.
package patch

import (
	"fmt"
	"slices"

	"github.com/kalambet/paperllm/internal/extract"
	"github.com/kalambet/paperllm/internal/paperless"
)

// Options identifies the processing tag, the amount custom field and the
// currency prefix of the amount value.
type Options struct {
	TagID    int
	FieldID  int
	Currency string
}

// Build returns the patch for doc given the parsed reply. The title is
// replaced, the processing tag is removed and the amount field is set to
// "<currency><amount>" with two decimals. Without an amount in res the custom
// fields are sent back unchanged, so a value entered by hand survives.
// Other tags and custom fields are kept in order. Build does not modify doc.
func Build(doc paperless.Document, res extract.Result, opts Options) paperless.DocumentPatch {
	tags := make([]int, 0, len(doc.Tags))
	for _, t := range doc.Tags {
		if t != opts.TagID {
			tags = append(tags, t)
		}
	}

	fields := make([]paperless.CustomFieldValue, 0, len(doc.CustomFields)+1)
	if res.Amount == nil {
		fields = append(fields, doc.CustomFields...)
	} else {
		for _, f := range doc.CustomFields {
			if f.Field != opts.FieldID {
				fields = append(fields, f)
			}
		}
		fields = append(fields, paperless.CustomFieldValue{
			Field: opts.FieldID,
			Value: paperless.StringValue(FormatAmount(opts.Currency, *res.Amount)),
		})
	}

	return paperless.DocumentPatch{
		Title:        res.Title,
		Tags:         tags,
		CustomFields: fields,
	}
}

// FormatAmount renders an amount as stored in the custom field, e.g. CHF42.00.
func FormatAmount(currency string, amount float64) string {
	return fmt.Sprintf("%s%.2f", currency, amount)
}

// Apply returns doc as it would be after p is written.
func Apply(doc paperless.Document, p paperless.DocumentPatch) paperless.Document {
	doc.Title = p.Title
	doc.Tags = slices.Clone(p.Tags)
	doc.CustomFields = slices.Clone(p.CustomFields)
	return doc
}

// TitleChanged reports whether p replaces the document's title.
func TitleChanged(doc paperless.Document, p paperless.DocumentPatch) bool {
	return doc.Title != p.Title
}
