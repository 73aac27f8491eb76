package tools

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/lexhub/lexhub/pkg/llms"
)

// DocumentGeneratorTool writes drafted legal documents (complaints,
// contracts, demand letters) to disk as docx or markdown and returns
// the generated file path.
type DocumentGeneratorTool struct {
	outputDir string
	now       func() time.Time
}

func NewDocumentGeneratorTool(outputDir string) *DocumentGeneratorTool {
	if outputDir == "" {
		outputDir = "./output"
	}
	return &DocumentGeneratorTool{outputDir: outputDir, now: time.Now}
}

func (t *DocumentGeneratorTool) Name() string { return "generate_legal_document" }

func (t *DocumentGeneratorTool) Description() string {
	return "将起草好的法律文书（起诉状、合同、律师函等）保存为文件。传入文书标题和完整内容，返回生成的文件路径。"
}

func (t *DocumentGeneratorTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "文书标题，例如：民事起诉状",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "文书完整内容",
				},
				"file_format": map[string]any{
					"type":        "string",
					"description": "输出格式，默认 docx",
					"enum":        []string{"docx", "markdown", "md"},
				},
			}, "title", "content"),
		},
	}
}

func (t *DocumentGeneratorTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	title, ok := stringArg(args, "title")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'title'（文书标题）")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'content'（文书内容）")
	}

	format := "docx"
	if f, ok := stringArg(args, "file_format"); ok {
		format = strings.ToLower(f)
	}

	if err := os.MkdirAll(t.outputDir, 0755); err != nil {
		return errorResult(t.Name(), fmt.Sprintf("无法创建输出目录: %v", err))
	}

	stamp := t.now().Format("20060102_150405")
	base := sanitizeFilename(title) + "_" + stamp

	var path string
	var err error
	switch format {
	case "markdown", "md":
		path = filepath.Join(t.outputDir, base+".md")
		err = t.writeMarkdown(path, title, content)
	case "docx":
		path = filepath.Join(t.outputDir, base+".docx")
		err = t.writeDocx(path, title, content)
	default:
		return errorResult(t.Name(), fmt.Sprintf("不支持的文件格式: %s", format))
	}
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("文件生成失败: %v", err))
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		absPath = path
	}
	return successResult(t.Name(), "文件已生成: "+absPath)
}

// sanitizeFilename keeps letters, digits, spaces, hyphens, and
// underscores; spaces become underscores. Capped at 50 runes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := b.String()
	runes := []rune(out)
	if len(runes) > 50 {
		out = string(runes[:50])
	}
	if out == "" {
		out = "document"
	}
	return out
}

func (t *DocumentGeneratorTool) writeMarkdown(path, title, content string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**生成时间**: %s\n\n", t.now().Format("2006-01-02 15:04:05"))
	b.WriteString("---\n\n")
	b.WriteString(content)
	b.WriteString("\n")
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// writeDocx emits a minimal OOXML package: content types, package
// rels, and a document part with one paragraph per content line.
func (t *DocumentGeneratorTool) writeDocx(path, title, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	parts := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"_rels/.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`,
		"word/document.xml": buildDocxDocument(title, content),
	}

	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := w.Write([]byte(data)); err != nil {
			zw.Close()
			return err
		}
	}

	return zw.Close()
}

func buildDocxDocument(title, content string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	writePara := func(text string, bold bool) {
		b.WriteString("<w:p><w:r>")
		if bold {
			b.WriteString("<w:rPr><w:b/></w:rPr>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		xml.EscapeText(&b, []byte(text))
		b.WriteString("</w:t></w:r></w:p>")
	}

	writePara(title, true)
	for _, line := range strings.Split(content, "\n") {
		writePara(line, false)
	}

	b.WriteString("</w:body></w:document>")
	return b.String()
}
