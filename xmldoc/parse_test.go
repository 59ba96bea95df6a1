package xmldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

const jobXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<!DOCTYPE Job SYSTEM "book.dtd">
<Job ConfigName="LHCb" ConfigVersion="Collision24" Date="2024-06-01" Time="01:02:03">
  <TypedParameter Name="ProgramName" Value="Moore" Type="Info"/>
  <TypedParameter Name="ProgramVersion" Value="v55r1" Type="Info"/>
  <TypedParameter Name="RunNumber" Value="1" Type="Info"/>
  <TypedParameter Name="RunNumber" Value=" 300000 " Type="Info"/>
  <InputFile Name="/lhcb/data/2024/RAW/a.raw"/>
  <OutputFile Name="/lhcb/data/2024/DST/a.dst" TypeName="DST" TypeVersion="1">
    <Parameter Name="EventStat" Value="1200"/>
    <Parameter Name="FileSize" Value="1024"/>
    <Replica Name="/lhcb/data/2024/DST/a.dst" Location="CERN-DST"/>
    <Replica Location="RAL-DST"/>
  </OutputFile>
  <OutputFile Name="/lhcb/data/2024/LOG/a.log" TypeName="LOG" TypeVersion="1"/>
  <OutputFileParameter Name="EventTypeId" Value="90000000"/>
  <SimulationCondition>
    <Parameter Name="SimDescription" Value="ignored"/>
  </SimulationCondition>
  <DataTakingConditions>
    <Parameter Name="BeamEnergy" Value="6800"/>
    <Parameter Name="MagneticField" Value="Down"/>
  </DataTakingConditions>
</Job>`

func TestParse_Job(t *testing.T) {
	doc, err := Parse([]byte(jobXML))
	require.NoError(t, err)
	require.Equal(t, bookkeeping.KindJob, doc.Kind)
	require.NotNil(t, doc.Job)
	job := doc.Job

	assert.Equal(t, bookkeeping.Configuration{ConfigName: "LHCb", ConfigVersion: "Collision24", Date: "2024-06-01", Time: "01:02:03"}, job.Configuration)
	assert.Equal(t, "300000", job.Parameters["RunNumber"], "last value wins and is trimmed")
	assert.Equal(t, "Moore", job.Parameters["ProgramName"])
	assert.Equal(t, []string{"/lhcb/data/2024/RAW/a.raw"}, job.InputNames())

	require.Len(t, job.OutputFiles, 2)
	dst := job.OutputFiles[0]
	assert.Equal(t, "DST", dst.TypeName)
	assert.Equal(t, "1", dst.TypeVersion)
	assert.Equal(t, map[string]string{"EventStat": "1200", "FileSize": "1024"}, dst.Parameters)
	assert.Equal(t, []bookkeeping.ReplicaLocation{
		{Name: "/lhcb/data/2024/DST/a.dst", Location: "CERN-DST"},
		{Name: "/lhcb/data/2024/DST/a.dst", Location: "RAL-DST"},
	}, dst.Replicas)
	assert.True(t, job.OutputFiles[1].IsLog())
	assert.Nil(t, job.OutputFiles[1].Parameters)

	assert.Equal(t, map[string]string{"EventTypeId": "90000000"}, job.OutputFileParameters)
	assert.Equal(t, map[string]string{"BeamEnergy": "6800", "MagneticField": "Down"}, job.DataTakingCondition)
	assert.True(t, job.HasCondition())
}

func TestParse_Latin1(t *testing.T) {
	utf8 := `<?xml version="1.0" encoding="ISO-8859-1"?>
<Job ConfigName="MC" ConfigVersion="2024"><TypedParameter Name="Location" Value="Zürich"/></Job>`
	latin1, err := charmap.ISO8859_1.NewEncoder().String(utf8)
	require.NoError(t, err)

	doc, err := Parse([]byte(latin1))
	require.NoError(t, err)
	assert.Equal(t, "Zürich", doc.Job.Parameters["Location"])
}

func TestParse_Replicas(t *testing.T) {
	data := `<?xml version="1.0"?>
<Replicas>
  <Replica Name="/lhcb/a.dst" Location="CERN-DST" SE="CERN-DST-EOS" Action="Delete"/>
  <Replica Name="/lhcb/a.dst" Location="RAL-DST" Action="Add"/>
  <Replica Name="/lhcb/b.dst" Location="RAL-DST"/>
</Replicas>`

	doc, err := Parse([]byte(data))
	require.NoError(t, err)
	require.Equal(t, bookkeeping.KindReplica, doc.Kind)
	assert.Equal(t, []bookkeeping.ReplicaAction{
		{FileName: "/lhcb/a.dst", Location: "CERN-DST", SE: "CERN-DST-EOS", Delete: true},
		{FileName: "/lhcb/a.dst", Location: "RAL-DST"},
		{FileName: "/lhcb/b.dst", Location: "RAL-DST"},
	}, doc.Replica.Actions)
}

func TestParse_UnknownRoot(t *testing.T) {
	doc, err := Parse([]byte(`<Production id="5"/>`))
	require.NoError(t, err)
	assert.Equal(t, bookkeeping.KindUnknown, doc.Kind)
	assert.Equal(t, "Production", doc.Root)
	assert.Nil(t, doc.Job)
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":                "",
		"only prolog":          `<?xml version="1.0"?>`,
		"unclosed":             `<Job ConfigName="x"><InputFile Name="a"/>`,
		"bad encoding":         `<?xml version="1.0" encoding="EBCDIC"?><Job/>`,
		"input without name":   `<Job><InputFile/></Job>`,
		"output without type":  `<Job><OutputFile Name="/a.dst"/></Job>`,
		"replica without name": `<Replicas><Replica Location="CERN"/></Replicas>`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}
