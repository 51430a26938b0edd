// ABOUTME: XSLT-backed Transformer: one compiled stylesheet shared read-only by all workers.
// ABOUTME: Payload read errors stay transient; parse and transform errors become RejectError.
package transform

import (
	"fmt"
	"os"
	"sync"

	"github.com/jbowtie/gokogiri/xml"
	"github.com/jbowtie/ratago/xslt"
)

// XSLT wraps a compiled stylesheet. The stylesheet itself is immutable after
// Load, but the underlying libxml transform context is not reentrant, so a
// mutex serialises Process calls. Workers overlap on I/O, DB work and the
// report directory; the transform step is the short critical section.
type XSLT struct {
	mu    sync.Mutex
	style *xslt.Stylesheet
	doc   *xml.XmlDocument
	path  string
}

// Load parses the stylesheet at path. Called once at daemon init; a failure
// here is an initialisation error, the daemon never starts without its
// stylesheet.
func Load(path string) (*XSLT, error) {
	doc, err := xml.ReadFile(path, xml.StrictParseOption)
	if err != nil {
		return nil, fmt.Errorf("read stylesheet %s: %w", path, err)
	}
	style, err := xslt.ParseStylesheet(doc, path)
	if err != nil {
		return nil, fmt.Errorf("parse stylesheet %s: %w", path, err)
	}
	return &XSLT{style: style, doc: doc, path: path}, nil
}

// Close releases the stylesheet document. Called once at teardown after the
// workers have joined.
func (x *XSLT) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.doc != nil {
		x.doc.Free()
		x.doc = nil
		x.style = nil
	}
}

// Transform runs the stylesheet over the payload at payloadPath and returns
// the produced document. Failures split two ways: trouble reading the file
// is transient (the submission can be retried once the I/O problem clears),
// while XML parse and transform failures are structural rejects.
func (x *XSLT) Transform(payloadPath string) ([]byte, error) {
	data, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", payloadPath, err)
	}

	doc, err := xml.Parse(data, xml.DefaultEncodingBytes, nil, xml.StrictParseOption, xml.DefaultEncodingBytes)
	if err != nil {
		return nil, &RejectError{Reason: fmt.Sprintf("payload %s is not well-formed XML", payloadPath), Err: err}
	}
	defer doc.Free()

	x.mu.Lock()
	out, err := x.style.Process(doc, xslt.StylesheetOptions{IndentOutput: false})
	x.mu.Unlock()
	if err != nil {
		return nil, &RejectError{Reason: fmt.Sprintf("stylesheet failed on payload %s", payloadPath), Err: err}
	}
	return []byte(out), nil
}
