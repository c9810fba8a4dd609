package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// Minimal OOXML writers. Both formats are plain zip packages of XML parts; the
// documents produced here carry unstyled paragraphs only, which every consumer
// of these exports accepts.

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}

func writeZipEntry(archive *zip.Writer, name, content string) error {
	writer, err := archive.Create(name)
	if err != nil {
		return err
	}
	_, err = writer.Write([]byte(content))
	return err
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func renderDOCX(payload exportPayload) ([]byte, error) {
	var body strings.Builder

	paragraph := func(text string, bold bool, size int) {
		props := fmt.Sprintf(`<w:rPr><w:sz w:val="%d"/>`, size*2)
		if bold {
			props += "<w:b/>"
		}
		props += "</w:rPr>"
		for _, line := range strings.Split(text, "\n") {
			body.WriteString("<w:p><w:r>" + props +
				`<w:t xml:space="preserve">` + xmlEscape(line) + "</w:t></w:r></w:p>")
		}
	}

	if payload.Title != "" {
		paragraph(payload.Title, true, 18)
	}
	for _, doc := range payload.Documents {
		if doc.Title != "" && doc.Title != payload.Title {
			paragraph(doc.Title, true, 14)
		}
		paragraph(doc.Body, false, 11)
	}
	for _, message := range payload.Chat {
		switch message.Role {
		case "date":
			paragraph(message.Content, true, 11)
		case "user":
			paragraph("You: "+message.Content, false, 11)
		default:
			paragraph("Assistant: "+message.Content, false, 11)
		}
	}
	for i, card := range payload.Cards {
		paragraph(fmt.Sprintf("Card %d", i+1), true, 12)
		paragraph("Q: "+card.Front, false, 11)
		paragraph("A: "+card.Back, false, 11)
	}
	if payload.Table != nil {
		paragraph(strings.Join(payload.Table.Headers, " | "), true, 11)
		for _, row := range payload.Table.Rows {
			paragraph(strings.Join(row, " | "), false, 11)
		}
	}
	for _, mindmap := range payload.Mindmaps {
		if mindmap.Title != "" {
			paragraph(mindmap.Title, true, 14)
		}
		var outline strings.Builder
		writeMindmapMarkdown(&outline, mindmap.Root, 0)
		paragraph(outline.String(), false, 11)
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>` + body.String() + `<w:sectPr/></w:body></w:document>`

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	entries := map[string]string{
		"[Content_Types].xml": docxContentTypes,
		"_rels/.rels":         docxRootRels,
		"word/document.xml":   document,
	}
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml"} {
		if err := writeZipEntry(archive, name, entries[name]); err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const pptxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/>
</Relationships>`

const pptxSlideMaster = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sldMaster xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/></p:spTree></p:cSld>
<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>
<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>
</p:sldMaster>`

const pptxSlideMasterRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme" Target="../theme/theme1.xml"/>
</Relationships>`

const pptxSlideLayout = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sldLayout xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" type="blank">
<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/></p:spTree></p:cSld>
<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>
</p:sldLayout>`

const pptxSlideLayoutRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="../slideMasters/slideMaster1.xml"/>
</Relationships>`

const pptxTheme = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<a:theme xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" name="Office">
<a:themeElements>
<a:clrScheme name="Office"><a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1><a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1><a:dk2><a:srgbClr val="44546A"/></a:dk2><a:lt2><a:srgbClr val="E7E6E6"/></a:lt2><a:accent1><a:srgbClr val="4472C4"/></a:accent1><a:accent2><a:srgbClr val="ED7D31"/></a:accent2><a:accent3><a:srgbClr val="A5A5A5"/></a:accent3><a:accent4><a:srgbClr val="FFC000"/></a:accent4><a:accent5><a:srgbClr val="5B9BD5"/></a:accent5><a:accent6><a:srgbClr val="70AD47"/></a:accent6><a:hlink><a:srgbClr val="0563C1"/></a:hlink><a:folHlink><a:srgbClr val="954F72"/></a:folHlink></a:clrScheme>
<a:fontScheme name="Office"><a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont><a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont></a:fontScheme>
<a:fmtScheme name="Office"><a:fillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:fillStyleLst><a:lnStyleLst><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln></a:lnStyleLst><a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst><a:bgFillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:bgFillStyleLst></a:fmtScheme>
</a:themeElements>
</a:theme>`

type pptxSlide struct {
	title     string
	body      []string
	imageData []byte
	imageExt  string
}

// renderPPTX builds a deck: one slide per source image when the payload
// carries slide captures, otherwise text slides split from the documents.
func renderPPTX(payload exportPayload) ([]byte, error) {
	slides := pptxSlidesFromPayload(payload)
	if len(slides) == 0 {
		return nil, errNothingToExport
	}

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	var contentTypes strings.Builder
	contentTypes.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="png" ContentType="image/png"/>
<Default Extension="jpg" ContentType="image/jpeg"/>
<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>
<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>
<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>
<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	for i := range slides {
		fmt.Fprintf(&contentTypes,
			`<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`,
			i+1)
	}
	contentTypes.WriteString("</Types>")

	var presRels strings.Builder
	presRels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rIdMaster" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster" Target="slideMasters/slideMaster1.xml"/>`)
	for i := range slides {
		fmt.Fprintf(&presRels,
			`<Relationship Id="rIdSlide%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`,
			i+1, i+1)
	}
	presRels.WriteString("</Relationships>")

	var presentation strings.Builder
	presentation.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rIdMaster"/></p:sldMasterIdLst>
<p:sldIdLst>`)
	for i := range slides {
		fmt.Fprintf(&presentation, `<p:sldId id="%d" r:id="rIdSlide%d"/>`, 256+i, i+1)
	}
	presentation.WriteString(`</p:sldIdLst>
<p:sldSz cx="12192000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/>
</p:presentation>`)

	static := []struct{ name, content string }{
		{"[Content_Types].xml", contentTypes.String()},
		{"_rels/.rels", pptxRootRels},
		{"ppt/presentation.xml", presentation.String()},
		{"ppt/_rels/presentation.xml.rels", presRels.String()},
		{"ppt/slideMasters/slideMaster1.xml", pptxSlideMaster},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", pptxSlideMasterRels},
		{"ppt/slideLayouts/slideLayout1.xml", pptxSlideLayout},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", pptxSlideLayoutRels},
		{"ppt/theme/theme1.xml", pptxTheme},
	}
	for _, part := range static {
		if err := writeZipEntry(archive, part.name, part.content); err != nil {
			return nil, fmt.Errorf("write pptx part %s: %w", part.name, err)
		}
	}

	for i, slide := range slides {
		slideXML, relsXML := renderPPTXSlide(slide, i+1)
		if err := writeZipEntry(archive, fmt.Sprintf("ppt/slides/slide%d.xml", i+1), slideXML); err != nil {
			return nil, err
		}
		if err := writeZipEntry(archive, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1), relsXML); err != nil {
			return nil, err
		}
		if slide.imageData != nil {
			writer, err := archive.Create(fmt.Sprintf("ppt/media/image%d.%s", i+1, slide.imageExt))
			if err != nil {
				return nil, err
			}
			if _, err := writer.Write(slide.imageData); err != nil {
				return nil, err
			}
		}
	}

	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pptxSlidesFromPayload(payload exportPayload) []pptxSlide {
	slides := []pptxSlide{}

	for _, capture := range payload.Slides {
		data, ext, err := decodeDataURL(capture.ImageData)
		if err != nil {
			logWarn("export.pptx.slide_skipped", "slide", capture.SlideNumber, "error", err)
			continue
		}
		slides = append(slides, pptxSlide{imageData: data, imageExt: ext})
	}
	if len(slides) > 0 {
		return slides
	}

	for _, doc := range payload.Documents {
		slides = append(slides, pptxSlide{title: doc.Title, body: strings.Split(doc.Body, "\n")})
	}
	for i, card := range payload.Cards {
		slides = append(slides, pptxSlide{
			title: fmt.Sprintf("Card %d", i+1),
			body:  []string{"Q: " + card.Front, "A: " + card.Back},
		})
	}
	return slides
}

func renderPPTXSlide(slide pptxSlide, number int) (slideXML, relsXML string) {
	var shapes strings.Builder

	if slide.imageData != nil {
		shapes.WriteString(`<p:pic>
<p:nvPicPr><p:cNvPr id="2" name="Slide image"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>
<p:blipFill><a:blip r:embed="rId2"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>
<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="12192000" cy="6858000"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>
</p:pic>`)
	} else {
		var paragraphs strings.Builder
		if slide.title != "" {
			paragraphs.WriteString(`<a:p><a:r><a:rPr lang="en-US" sz="2800" b="1"/><a:t>` +
				xmlEscape(slide.title) + "</a:t></a:r></a:p>")
		}
		for _, line := range slide.body {
			paragraphs.WriteString(`<a:p><a:r><a:rPr lang="en-US" sz="1600"/><a:t>` +
				xmlEscape(line) + "</a:t></a:r></a:p>")
		}
		shapes.WriteString(`<p:sp>
<p:nvSpPr><p:cNvPr id="2" name="Content"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>
<p:spPr><a:xfrm><a:off x="838200" y="609600"/><a:ext cx="10515600" cy="5638800"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>
<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>` + paragraphs.String() + `</p:txBody>
</p:sp>`)
	}

	slideXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:cSld><p:spTree>
<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		shapes.String() + `</p:spTree></p:cSld>
<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>
</p:sld>`

	var rels strings.Builder
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`)
	if slide.imageData != nil {
		fmt.Fprintf(&rels,
			`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image%d.%s"/>`,
			number, slide.imageExt)
	}
	rels.WriteString("</Relationships>")
	relsXML = rels.String()

	return slideXML, relsXML
}
