package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"voice-pipeline-go/internal/types"
)

type callXML struct {
	Sid          string `xml:"Sid"`
	Status       string `xml:"Status"`
	RecordingURL string `xml:"RecordingUrl"`
	From         string `xml:"From"`
	To           string `xml:"To"`
	Direction    string `xml:"Direction"`
	Duration     string `xml:"Duration"`
	StartTime    string `xml:"StartTime"`
	EndTime      string `xml:"EndTime"`
}

func (c callXML) meta() types.CallMeta {
	duration, _ := strconv.Atoi(strings.TrimSpace(c.Duration))
	return types.CallMeta{
		SID:          strings.TrimSpace(c.Sid),
		Status:       strings.TrimSpace(c.Status),
		RecordingURL: strings.TrimSpace(c.RecordingURL),
		From:         strings.TrimSpace(c.From),
		To:           strings.TrimSpace(c.To),
		Direction:    strings.TrimSpace(c.Direction),
		Duration:     duration,
		StartTime:    strings.TrimSpace(c.StartTime),
		EndTime:      strings.TrimSpace(c.EndTime),
	}
}

type listMeta struct {
	total    int
	pageSize int
}

// parseCalls collects every <Call> element and the first <Total> and
// <PageSize> values, wherever they sit in the document.
func parseCalls(body []byte) ([]types.CallMeta, listMeta, error) {
	var (
		calls               []types.CallMeta
		meta                listMeta
		seenTotal, seenSize bool
	)
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, listMeta{}, fmt.Errorf("parse xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "Call":
			var c callXML
			if err := dec.DecodeElement(&c, &se); err != nil {
				return nil, listMeta{}, fmt.Errorf("decode call: %w", err)
			}
			calls = append(calls, c.meta())
		case "Total":
			if !seenTotal {
				meta.total = decodeInt(dec, se)
				seenTotal = true
			}
		case "PageSize":
			if !seenSize {
				meta.pageSize = decodeInt(dec, se)
				seenSize = true
			}
		}
	}
	return calls, meta, nil
}

func decodeInt(dec *xml.Decoder, se xml.StartElement) int {
	var v string
	if err := dec.DecodeElement(&v, &se); err != nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}
