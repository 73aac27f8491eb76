package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/lexhub/lexhub/pkg/llms"
)

const maxFileReadChars = 50000

// FileReadTool reads local documents so agents can review contracts
// and case materials supplied as files. Supports plain text, PDF,
// docx, and xlsx.
type FileReadTool struct{}

func NewFileReadTool() *FileReadTool { return &FileReadTool{} }

func (t *FileReadTool) Name() string { return "file_read" }

func (t *FileReadTool) Description() string {
	return "读取本地文件内容，支持 txt、md、pdf、docx、xlsx 等格式。用于审查合同文本和案件材料。"
}

func (t *FileReadTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Type: "function",
		Function: llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: objectSchema(map[string]any{
				"file_path": map[string]any{
					"type":        "string",
					"description": "要读取的文件路径",
				},
			}, "file_path"),
		},
	}
}

func (t *FileReadTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	path, ok := stringArg(args, "file_path")
	if !ok {
		return errorResult(t.Name(), "缺少必需参数 'file_path'")
	}

	if _, err := os.Stat(path); err != nil {
		return errorResult(t.Name(), fmt.Sprintf("文件不存在: %s", path))
	}

	var content string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = readPDF(path)
	case ".docx":
		content, err = readDocx(path)
	case ".xlsx", ".xlsm":
		content, err = readExcel(path)
	default:
		content, err = readText(path)
	}
	if err != nil {
		return errorResult(t.Name(), fmt.Sprintf("读取文件失败: %v", err))
	}

	if len([]rune(content)) > maxFileReadChars {
		content = string([]rune(content)[:maxFileReadChars]) + "\n...（内容已截断）"
	}
	return successResult(t.Name(), content)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var docxTagRe = regexp.MustCompile(`<[^>]+>`)

func readDocx(path string) (string, error) {
	d, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer d.Close()

	raw := d.Editable().GetContent()
	// Paragraph ends become newlines before tags are stripped.
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	text := docxTagRe.ReplaceAllString(raw, "")
	return strings.TrimSpace(text), nil
}

func readExcel(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "[工作表: %s]\n", sheet)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
