package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/outline"
	"github.com/dgallion1/docoutline/internal/parser/parsertest"
)

func drain(t *testing.T, src Source) []doctree.Element {
	t.Helper()
	var out []doctree.Element
	for {
		e, err := src.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestDOCXReader_ParagraphStyles(t *testing.T) {
	data := parsertest.DOCX(parsertest.Para("Heading1", "Intro")+parsertest.Para("", "Body text")+parsertest.Para("Chapter", "Custom"), nil)

	src, err := (&DOCXReader{}).Open(data)
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 3)

	h := elems[0].Paragraph
	require.NotNil(t, h)
	assert.Equal(t, "Heading1", h.StyleID)
	assert.Equal(t, "heading 1", h.StyleName)
	require.NotNil(t, h.OutlineLevel)
	assert.Equal(t, 0, *h.OutlineLevel)
	assert.Equal(t, "Intro", h.Text())

	body := elems[1].Paragraph
	assert.Equal(t, "", body.StyleID)
	assert.Nil(t, body.OutlineLevel)
	assert.Equal(t, "Body text", body.Text())

	custom := elems[2].Paragraph
	assert.Equal(t, "Chapter Title", custom.StyleName)
	require.NotNil(t, custom.OutlineLevel, "outline level inherited via basedOn")
	assert.Equal(t, 1, *custom.OutlineLevel)
}

func texts(elems []doctree.Element) []string {
	var out []string
	for _, e := range elems {
		if e.Paragraph != nil {
			out = append(out, e.Paragraph.Text())
		}
	}
	return out
}

func TestDOCXReader_ParagraphOutlineLevel(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Normal"/><w:outlineLvl w:val="0"/></w:pPr><w:r><w:t>Scope</w:t></w:r></w:p>` +
		parsertest.Para("", "Body") +
		`<w:p><w:pPr><w:pStyle w:val="Heading1"/><w:outlineLvl w:val="2"/></w:pPr><w:r><w:t>Detail</w:t></w:r></w:p>`
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 3)

	scope := elems[0].Paragraph
	assert.Equal(t, "Normal", scope.StyleName)
	require.NotNil(t, scope.OutlineLevel, "level set on the paragraph itself")
	assert.Equal(t, 0, *scope.OutlineLevel)

	assert.Nil(t, elems[1].Paragraph.OutlineLevel)

	detail := elems[2].Paragraph
	require.NotNil(t, detail.OutlineLevel)
	assert.Equal(t, 2, *detail.OutlineLevel, "paragraph level wins over the style's")
}

func TestDOCXReader_ParagraphOutlineLevelMakesSection(t *testing.T) {
	body := `<w:p><w:pPr><w:outlineLvl w:val="0"/></w:pPr><w:r><w:t>Scope</w:t></w:r></w:p>` +
		parsertest.Para("", "Body")
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)

	out, err := outline.NewBuilder(outline.DefaultMaxDepth).Build(src)
	require.NoError(t, err)
	require.Len(t, out.Sections, 1)
	assert.Equal(t, "1", out.Sections[0].NumberPath)
	assert.Equal(t, "Scope", out.Sections[0].Title)
	assert.Len(t, out.Sections[0].Items, 1)
}

func TestDOCXReader_WrappedInlineText(t *testing.T) {
	body := parsertest.Para("Heading1", "Scope") +
		`<w:p><w:r><w:t xml:space="preserve">kept </w:t></w:r>` +
		`<w:ins w:id="1" w:author="a"><w:r><w:t xml:space="preserve">inserted </w:t></w:r></w:ins>` +
		`<w:del w:id="2" w:author="a"><w:r><w:delText>gone</w:delText></w:r></w:del>` +
		`<w:fldSimple w:instr=" PAGE "><w:r><w:t>7</w:t></w:r></w:fldSimple>` +
		`<w:bookmarkStart w:id="0" w:name="b"/><w:bookmarkEnd w:id="0"/>` +
		`<w:smartTag w:uri="u" w:element="place"><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve"> city</w:t></w:r></w:smartTag>` +
		`<m:oMath><m:r><m:t>x</m:t></m:r></m:oMath></w:p>` +
		`<w:sdt><w:sdtPr><w:alias w:val="c"/></w:sdtPr><w:sdtContent>` +
		parsertest.Para("Heading2", "Controlled") + parsertest.Para("", "inside content control") +
		`</w:sdtContent></w:sdt>` +
		parsertest.Para("", "after")

	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 5)
	assert.Equal(t, []string{"Scope", "kept inserted 7 city", "Controlled", "inside content control", "after"}, texts(elems))

	runs := elems[1].Paragraph.Runs
	require.Len(t, runs, 4)
	assert.Equal(t, []doctree.Mark{doctree.MarkBold}, runs[3].Marks)

	controlled := elems[2].Paragraph
	assert.Equal(t, "heading 2", controlled.StyleName)
	require.NotNil(t, controlled.OutlineLevel)
	assert.Equal(t, 1, *controlled.OutlineLevel)

	warns := src.Warnings()
	require.Len(t, warns, 1, "only the equation loses text")
	assert.Equal(t, doctree.WarnUnsupportedInline, warns[0].Code)
	assert.Contains(t, warns[0].Message, "oMath")
}

func TestDOCXReader_ContentControlTableWarns(t *testing.T) {
	body := parsertest.Para("Heading1", "Data") +
		`<w:sdt><w:sdtContent>` + parsertest.Table([][]string{{"a"}}) + `</w:sdtContent></w:sdt>`
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	assert.Len(t, drain(t, src), 1)

	warns := src.Warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, doctree.WarnUnsupportedInline, warns[0].Code)
	assert.Contains(t, warns[0].Message, "table")
}

func TestDOCXReader_Lists(t *testing.T) {
	numberedHeading := `<w:p><w:pPr><w:pStyle w:val="Heading1"/><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr>` +
		`<w:r><w:t>Next</w:t></w:r></w:p>`
	body := parsertest.Para("Heading1", "Steps") +
		parsertest.ListItem("1", 0, "first") +
		parsertest.ListItem("1", 1, "detail") +
		parsertest.ListItem("1", 0, "second") +
		parsertest.Para("", "between") +
		parsertest.ListItem("1", 0, "again") +
		parsertest.ListItem("2", 0, "dot") +
		parsertest.Para("ListBullet", "styled") +
		numberedHeading +
		parsertest.ListItem("1", 0, "restart")
	data := parsertest.DOCX(body, map[string][]byte{"word/numbering.xml": []byte(parsertest.Numbering)})

	src, err := (&DOCXReader{}).Open(data)
	require.NoError(t, err)
	elems := drain(t, src)
	assert.Equal(t, []string{
		"Steps",
		"1. first",
		"  - detail",
		"2. second",
		"between",
		"1. again",
		"- dot",
		"- styled",
		"Next",
		"1. restart",
	}, texts(elems))
	assert.Empty(t, src.Warnings())
}

func TestDOCXReader_ListWithoutDefinitions(t *testing.T) {
	body := parsertest.Para("Heading1", "Steps") +
		parsertest.ListItem("4", 0, "one") +
		parsertest.ListItem("4", 0, "two") +
		parsertest.ListItem("0", 0, "plain")
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"Steps", "1. one", "2. two", "plain"}, texts(drain(t, src)))
}

func TestDOCXReader_RunMarks(t *testing.T) {
	body := `<w:p><w:r><w:t xml:space="preserve">plain </w:t></w:r>` +
		`<w:r><w:rPr><w:b/><w:i/></w:rPr><w:t>strong</w:t></w:r>` +
		`<w:r><w:rPr><w:u w:val="none"/></w:rPr><w:t> end</w:t></w:r></w:p>`
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 1)

	runs := elems[0].Paragraph.Runs
	require.Len(t, runs, 3)
	assert.Empty(t, runs[0].Marks)
	assert.Equal(t, []doctree.Mark{doctree.MarkBold, doctree.MarkItalic}, runs[1].Marks)
	assert.Empty(t, runs[2].Marks)
}

func TestDOCXReader_Table(t *testing.T) {
	body := parsertest.Para("Heading1", "Data") + parsertest.Table([][]string{{"Name", "Value"}, {"a", "1"}})
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 2)

	assert.Equal(t, doctree.KindTable, elems[1].Kind)
	assert.Equal(t, [][]string{{"Name", "Value"}, {"a", "1"}}, elems[1].Table.Rows)
}

func TestDOCXReader_Image(t *testing.T) {
	body := parsertest.Para("Heading1", "Figures") + parsertest.Drawing("rId5")
	data := parsertest.DOCX(body, map[string][]byte{"word/media/image1.png": parsertest.PNG(64, 32)})

	src, err := (&DOCXReader{}).Open(data)
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 2)

	img := elems[1].Image
	require.NotNil(t, img)
	assert.Equal(t, "image1.png", img.Filename)
	assert.Equal(t, "image/png", img.MIMEType)
	require.NotNil(t, img.Width)
	require.NotNil(t, img.Height)
	assert.Equal(t, 64, *img.Width)
	assert.Equal(t, 32, *img.Height)
	assert.Empty(t, src.Warnings())
}

func TestDOCXReader_UnresolvedImage(t *testing.T) {
	body := parsertest.Para("Heading1", "Figures") + parsertest.Drawing("rId42")
	src, err := (&DOCXReader{}).Open(parsertest.DOCX(body, nil))
	require.NoError(t, err)
	elems := drain(t, src)
	require.Len(t, elems, 1, "unresolved image is dropped")

	warns := src.Warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, doctree.WarnImageUnresolved, warns[0].Code)
	assert.Contains(t, warns[0].Message, "rId42")
}

func TestDOCXReader_Unreadable(t *testing.T) {
	_, err := (&DOCXReader{}).Open([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, ErrUnreadable)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("readme.txt")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	_, err = (&DOCXReader{}).Open(buf.Bytes())
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestDOCXReader_EmptyBody(t *testing.T) {
	src, err := (&DOCXReader{}).Open(parsertest.DOCX("", nil))
	require.NoError(t, err)
	assert.Empty(t, drain(t, src))
}

func TestForFile(t *testing.T) {
	r, err := ForFile("Report.DOCX")
	require.NoError(t, err)
	assert.IsType(t, &DOCXReader{}, r)

	r, err = ForFile("notes.md")
	require.NoError(t, err)
	assert.IsType(t, &MarkdownReader{}, r)

	_, err = ForFile("scan.pdf")
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.True(t, IsSupportedExtension("a.markdown"))
	assert.False(t, IsSupportedExtension("a.doc"))
}
