// Package xmldoc reads bookkeeping XML documents into typed documents.
//
// Two roots are understood: <Job> describes one job with its input and output
// files, <Replicas> lists replica additions and removals. Any other root parses
// to a document of unknown kind.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// ErrMalformed is wrapped by every parse failure
var ErrMalformed = errors.New("malformed bookkeeping XML")

// ActionDelete marks a replica removal; any other action adds
const ActionDelete = "Delete"

type xmlParam struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value,attr"`
	Type  string `xml:"Type,attr"`
}

type xmlReplica struct {
	Name     string `xml:"Name,attr"`
	Location string `xml:"Location,attr"`
	SE       string `xml:"SE,attr"`
	Action   string `xml:"Action,attr"`
}

type xmlOutputFile struct {
	Name        string       `xml:"Name,attr"`
	TypeName    string       `xml:"TypeName,attr"`
	TypeVersion string       `xml:"TypeVersion,attr"`
	Parameters  []xmlParam   `xml:"Parameter"`
	Replicas    []xmlReplica `xml:"Replica"`
}

type xmlJob struct {
	ConfigName    string          `xml:"ConfigName,attr"`
	ConfigVersion string          `xml:"ConfigVersion,attr"`
	Date          string          `xml:"Date,attr"`
	Time          string          `xml:"Time,attr"`
	Parameters    []xmlParam      `xml:"TypedParameter"`
	InputFiles    []xmlParam      `xml:"InputFile"`
	OutputFiles   []xmlOutputFile `xml:"OutputFile"`
	OutputParams  []xmlParam      `xml:"OutputFileParameter"`
	Conditions    *struct {
		Parameters []xmlParam `xml:"Parameter"`
	} `xml:"DataTakingConditions"`
}

type xmlReplicas struct {
	Replicas []xmlReplica `xml:"Replica"`
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "us-ascii", "ascii", "utf-8", "utf8":
		return input, nil
	}
	return nil, errors.Newf("unsupported encoding %q", label)
}

// Parse decodes one document. Syntax errors and structurally invalid jobs wrap ErrMalformed.
func Parse(data []byte) (bookkeeping.Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader

	root, err := rootElement(dec)
	if err != nil {
		return bookkeeping.Document{}, err
	}

	doc := bookkeeping.Document{Root: root.Name.Local}
	switch root.Name.Local {
	case "Job":
		var xj xmlJob
		if err := dec.DecodeElement(&xj, &root); err != nil {
			return doc, errors.Mark(errors.Wrap(err, "decode Job"), ErrMalformed)
		}
		job, err := convertJob(xj)
		if err != nil {
			return doc, err
		}
		doc.Kind = bookkeeping.KindJob
		doc.Job = job

	case "Replicas":
		var xr xmlReplicas
		if err := dec.DecodeElement(&xr, &root); err != nil {
			return doc, errors.Mark(errors.Wrap(err, "decode Replicas"), ErrMalformed)
		}
		replicas, err := convertReplicas(xr)
		if err != nil {
			return doc, err
		}
		doc.Kind = bookkeeping.KindReplica
		doc.Replica = replicas

	default:
		doc.Kind = bookkeeping.KindUnknown
	}
	return doc, nil
}

func rootElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, errors.Wrap(ErrMalformed, "document has no root element")
		}
		if err != nil {
			return xml.StartElement{}, errors.Mark(errors.Wrap(err, "read root element"), ErrMalformed)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func malformedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}

// params flattens name/value pairs; a repeated name keeps the last value
func params(in []xmlParam) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for _, p := range in {
		if p.Name == "" {
			continue
		}
		out[p.Name] = strings.TrimSpace(p.Value)
	}
	return out
}

func convertJob(xj xmlJob) (*bookkeeping.Job, error) {
	job := &bookkeeping.Job{
		Configuration: bookkeeping.Configuration{
			ConfigName:    xj.ConfigName,
			ConfigVersion: xj.ConfigVersion,
			Date:          xj.Date,
			Time:          xj.Time,
		},
		Parameters:           params(xj.Parameters),
		OutputFileParameters: params(xj.OutputParams),
	}
	if job.Parameters == nil {
		job.Parameters = make(map[string]string)
	}
	if xj.Conditions != nil {
		job.DataTakingCondition = params(xj.Conditions.Parameters)
	}

	for i, in := range xj.InputFiles {
		if in.Name == "" {
			return nil, malformedf("InputFile %d has no Name", i+1)
		}
		job.InputFiles = append(job.InputFiles, bookkeeping.InputFile{Name: in.Name})
	}

	for i, xo := range xj.OutputFiles {
		if xo.Name == "" {
			return nil, malformedf("OutputFile %d has no Name", i+1)
		}
		if xo.TypeName == "" {
			return nil, malformedf("OutputFile %s has no TypeName", xo.Name)
		}
		out := &bookkeeping.OutputFile{
			Name:        xo.Name,
			TypeName:    xo.TypeName,
			TypeVersion: xo.TypeVersion,
			Parameters:  params(xo.Parameters),
		}
		for _, r := range xo.Replicas {
			name := r.Name
			if name == "" {
				name = xo.Name
			}
			out.Replicas = append(out.Replicas, bookkeeping.ReplicaLocation{Name: name, Location: r.Location})
		}
		job.OutputFiles = append(job.OutputFiles, out)
	}
	return job, nil
}

func convertReplicas(xr xmlReplicas) (*bookkeeping.ReplicaDocument, error) {
	doc := &bookkeeping.ReplicaDocument{}
	for i, r := range xr.Replicas {
		if r.Name == "" {
			return nil, malformedf("Replica %d has no Name", i+1)
		}
		doc.Actions = append(doc.Actions, bookkeeping.ReplicaAction{
			FileName: r.Name,
			Location: r.Location,
			SE:       r.SE,
			Delete:   r.Action == ActionDelete,
		})
	}
	return doc, nil
}
