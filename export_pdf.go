package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// renderPDF lays the payload out as a simple A4 document. The core fonts are
// cp1252-only, so text goes through the built-in translator; characters
// outside that set degrade rather than break the file.
func renderPDF(payload exportPayload) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	heading := func(text string, size float64) {
		doc.SetFont("Helvetica", "B", size)
		doc.MultiCell(0, size*0.5, tr(text), "", "L", false)
		doc.Ln(2)
	}
	body := func(text string) {
		doc.SetFont("Helvetica", "", 11)
		doc.MultiCell(0, 5.5, tr(text), "", "L", false)
		doc.Ln(3)
	}

	if payload.Title != "" {
		heading(payload.Title, 16)
	}

	for _, item := range payload.Documents {
		if item.Title != "" && item.Title != payload.Title {
			heading(item.Title, 13)
		}
		body(item.Body)
	}

	for _, message := range payload.Chat {
		switch message.Role {
		case "date":
			heading(message.Content, 11)
		case "user":
			doc.SetFont("Helvetica", "B", 11)
			doc.MultiCell(0, 5.5, tr("You"), "", "L", false)
			body(message.Content)
		default:
			doc.SetFont("Helvetica", "B", 11)
			doc.MultiCell(0, 5.5, tr("Assistant"), "", "L", false)
			body(message.Content)
		}
	}

	for i, card := range payload.Cards {
		heading(fmt.Sprintf("Card %d", i+1), 12)
		body("Q: " + card.Front)
		body("A: " + card.Back)
	}

	if payload.Table != nil {
		renderPDFTable(doc, tr, payload.Table)
	}

	for _, mindmap := range payload.Mindmaps {
		if mindmap.Title != "" {
			heading(mindmap.Title, 13)
		}
		var outline strings.Builder
		writeMindmapMarkdown(&outline, mindmap.Root, 0)
		body(outline.String())
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDFTable(doc *fpdf.Fpdf, tr func(string) string, table *DataTable) {
	if len(table.Headers) == 0 {
		return
	}
	pageWidth, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(table.Headers))

	doc.SetFont("Helvetica", "B", 10)
	for _, header := range table.Headers {
		doc.CellFormat(colWidth, 7, tr(truncateCell(header)), "1", 0, "L", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 10)
	for _, row := range table.Rows {
		for i := 0; i < len(table.Headers); i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			doc.CellFormat(colWidth, 6, tr(truncateCell(cell)), "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}
	doc.Ln(3)
}

func truncateCell(cell string) string {
	cell = strings.ReplaceAll(cell, "\n", " ")
	if len(cell) > 60 {
		return cell[:57] + "..."
	}
	return cell
}
