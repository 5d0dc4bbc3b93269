package loader

import (
	"archive/zip"
	"bufio"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"unicode/utf16"

	"github.com/kingrea/packsync/internal/table"
)

// BIFF12 record types read by the xlsb loader.
const (
	brtRowHdr       = 0x00
	brtCellBlank    = 0x01
	brtCellRk       = 0x02
	brtCellError    = 0x03
	brtCellBool     = 0x04
	brtCellReal     = 0x05
	brtCellSt       = 0x06
	brtCellIsst     = 0x07
	brtFmlaString   = 0x08
	brtFmlaNum      = 0x09
	brtFmlaBool     = 0x0A
	brtFmlaError    = 0x0B
	brtSSTItem      = 0x13
	brtCellRString  = 0x3E
	brtBundleSh     = 0x9C
	maxXLSBColumns  = 16384
	defaultSheetBin = "xl/worksheets/sheet1.bin"
)

var cellErrors = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
	0x2B: "#GETTING_DATA",
}

type record struct {
	kind uint32
	data []byte
}

// loadXLSB reads the first sheet of a binary workbook.
func loadXLSB(name string) (*table.Table, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[strings.ToLower(f.Name)] = f
	}

	sheetPath, err := firstSheetPath(files)
	if err != nil {
		return nil, err
	}
	var shared []string
	if sst, ok := files["xl/sharedstrings.bin"]; ok {
		if shared, err = readSharedStrings(sst); err != nil {
			return nil, fmt.Errorf("sharedStrings.bin: %w", err)
		}
	}
	sheet, ok := files[strings.ToLower(sheetPath)]
	if !ok {
		return nil, fmt.Errorf("planilha %s ausente", sheetPath)
	}
	grid, err := readSheet(sheet, shared)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sheetPath, err)
	}
	return fromGrid(grid, false)
}

func firstSheetPath(files map[string]*zip.File) (string, error) {
	wb, ok := files["xl/workbook.bin"]
	if !ok {
		return "", errors.New("xl/workbook.bin ausente")
	}
	var relID string
	err := eachRecord(wb, func(rec record) (bool, error) {
		if rec.kind != brtBundleSh {
			return true, nil
		}
		c := cursor{buf: rec.data}
		c.skip(8) // hsState, iTabID
		id, err := c.nullableWideString()
		if err != nil {
			return false, err
		}
		relID = id
		return false, nil
	})
	if err != nil {
		return "", err
	}
	rels, ok := files["xl/_rels/workbook.bin.rels"]
	if relID == "" || !ok {
		return defaultSheetBin, nil
	}
	target, err := relationshipTarget(rels, relID)
	if err != nil || target == "" {
		return defaultSheetBin, nil
	}
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/"), nil
	}
	return path.Clean(path.Join("xl", target)), nil
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func relationshipTarget(f *zip.File, id string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return "", err
	}
	for _, r := range rels.Items {
		if r.ID == id {
			return r.Target, nil
		}
	}
	return "", nil
}

func readSharedStrings(f *zip.File) ([]string, error) {
	var out []string
	err := eachRecord(f, func(rec record) (bool, error) {
		if rec.kind != brtSSTItem {
			return true, nil
		}
		c := cursor{buf: rec.data}
		c.skip(1) // rich/ext flags
		s, err := c.wideString()
		if err != nil {
			return false, err
		}
		out = append(out, s)
		return true, nil
	})
	return out, err
}

func readSheet(f *zip.File, shared []string) ([][]table.Value, error) {
	var grid [][]table.Value
	row := -1
	err := eachRecord(f, func(rec record) (bool, error) {
		c := cursor{buf: rec.data}
		if rec.kind == brtRowHdr {
			rw, err := c.u32()
			if err != nil {
				return false, err
			}
			row = int(rw)
			return true, nil
		}
		if !isCell(rec.kind) || row < 0 {
			return true, nil
		}
		col, err := c.u32()
		if err != nil {
			return false, err
		}
		if col >= maxXLSBColumns {
			return false, fmt.Errorf("coluna %d fora do limite", col)
		}
		c.skip(4) // style and flags
		v, err := cellValue(rec.kind, &c, shared)
		if err != nil {
			return false, err
		}
		for len(grid) <= row {
			grid = append(grid, nil)
		}
		for len(grid[row]) <= int(col) {
			grid[row] = append(grid[row], table.Blank())
		}
		grid[row][col] = v
		return true, nil
	})
	return grid, err
}

func isCell(kind uint32) bool {
	return (kind >= brtCellBlank && kind <= brtFmlaError) || kind == brtCellRString
}

func cellValue(kind uint32, c *cursor, shared []string) (table.Value, error) {
	switch kind {
	case brtCellBlank:
		return table.Blank(), nil
	case brtCellRk:
		rk, err := c.u32()
		if err != nil {
			return table.Value{}, err
		}
		return table.Number(decodeRK(rk)), nil
	case brtCellError, brtFmlaError:
		b, err := c.u8()
		if err != nil {
			return table.Value{}, err
		}
		if s, ok := cellErrors[b]; ok {
			return table.Text(s), nil
		}
		return table.Text("#ERR"), nil
	case brtCellBool, brtFmlaBool:
		b, err := c.u8()
		if err != nil {
			return table.Value{}, err
		}
		return table.Bool(b != 0), nil
	case brtCellReal, brtFmlaNum:
		f, err := c.f64()
		if err != nil {
			return table.Value{}, err
		}
		return table.Number(f), nil
	case brtCellSt, brtFmlaString:
		s, err := c.wideString()
		if err != nil {
			return table.Value{}, err
		}
		return table.Text(s), nil
	case brtCellRString:
		c.skip(1) // rich/phonetic flags
		s, err := c.wideString()
		if err != nil {
			return table.Value{}, err
		}
		return table.Text(s), nil
	case brtCellIsst:
		idx, err := c.u32()
		if err != nil {
			return table.Value{}, err
		}
		if int(idx) >= len(shared) {
			return table.Value{}, fmt.Errorf("índice de string compartilhada %d inválido", idx)
		}
		return table.Text(shared[idx]), nil
	}
	return table.Blank(), nil
}

// decodeRK expands the packed RK number encoding.
func decodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

// eachRecord streams the BIFF12 records of a part until fn returns false.
func eachRecord(f *zip.File, fn func(record) (bool, error)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	r := bufio.NewReader(rc)
	for {
		kind, err := readVarint(r, 2)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		size, err := readVarint(r, 4)
		if err != nil {
			return unexpected(err)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return unexpected(err)
		}
		more, err := fn(record{kind: kind, data: data})
		if err != nil || !more {
			return err
		}
	}
}

// readVarint decodes the 7-bit little-endian groups used for record type
// (up to 2 bytes) and record size (up to 4 bytes).
func readVarint(r io.ByteReader, maxBytes int) (uint32, error) {
	var v uint32
	for i := 0; i < maxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 {
				return 0, unexpected(err)
			}
			return 0, err
		}
		v |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return v, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

type cursor struct {
	buf []byte
	off int
}

func (c *cursor) skip(n int) { c.off += n }

func (c *cursor) need(n int) error {
	if c.off+n > len(c.buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) f64() (float64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(c.buf[c.off:]))
	c.off += 8
	return v, nil
}

func (c *cursor) wideString() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	return c.utf16(int(n))
}

func (c *cursor) nullableWideString() (string, error) {
	n, err := c.u32()
	if err != nil {
		return "", err
	}
	if n == 0xFFFFFFFF {
		return "", nil
	}
	return c.utf16(int(n))
}

func (c *cursor) utf16(units int) (string, error) {
	if units < 0 {
		return "", io.ErrUnexpectedEOF
	}
	if err := c.need(units * 2); err != nil {
		return "", err
	}
	codes := make([]uint16, units)
	for i := range codes {
		codes[i] = binary.LittleEndian.Uint16(c.buf[c.off+2*i:])
	}
	c.off += units * 2
	return string(utf16.Decode(codes)), nil
}
