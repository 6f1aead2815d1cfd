package cleaner

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// mdConverter is shared; Converter is safe for concurrent use.
var mdConverter = newMarkdownConverter()

// newMarkdownConverter renders notice bodies. Placement notices are mostly
// paragraphs, lists and the odd shortlist table, so tables are kept with
// minimal padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Markdown converts a detail view's HTML to Markdown.
func Markdown(htmlContent string) (string, error) {
	md, err := mdConverter.ConvertString(htmlContent)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
