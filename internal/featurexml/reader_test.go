package featurexml

import (
	"errors"
	"strings"
	"testing"
)

const testFeatureXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<featureMap version="1.9" id="fm_1" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
	<dataProcessing completion_time="2020-01-01T00:00:00">
		<software name="FeatureFinderMetabo" version="2.5.0"/>
	</dataProcessing>
	<featureList count="3">
		<feature id="f_13403424510934927101">
			<position dim="0">301.25</position>
			<position dim="1">181.070666</position>
			<intensity>1.5e05</intensity>
			<quality dim="0">0</quality>
			<overallquality>0.9</overallquality>
			<charge>1</charge>
			<convexhull nr="0">
				<pt x="300.1" y="181.0706"/>
			</convexhull>
			<UserParam type="string" name="label" value="glucose Hº"/>
		</feature>
		<feature id="f_2">
			<position dim="0">301.3</position>
			<position dim="1">203.052608</position>
			<intensity>4e04</intensity>
			<charge>0</charge>
		</feature>
		<feature id="f_3">
			<position dim="0">410.0</position>
			<intensity>10</intensity>
		</feature>
	</featureList>
</featureMap>
`

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testFeatureXML))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if n := f.NumFeatures(); n != 3 {
		t.Errorf("NumFeatures is %d, expected 3", n)
	}
	feat, err := f.Feature(0)
	if err != nil {
		t.Errorf("Feature: error return %v", err)
	}
	if feat.ID != "f_13403424510934927101" || feat.Index != 0 {
		t.Errorf("Feature 0 has id %s index %d", feat.ID, feat.Index)
	}
	if feat.Mz != 181.070666 || feat.RT != 301.25 {
		t.Errorf("Feature 0 position rt %f mz %f", feat.RT, feat.Mz)
	}
	if feat.Charge != 1 || feat.Intensity != 1.5e5 {
		t.Errorf("Feature 0 charge %d intensity %f", feat.Charge, feat.Intensity)
	}
	feat, _ = f.Feature(1)
	if feat.Charge != 0 {
		t.Errorf("Feature 1 charge %d, should be 0", feat.Charge)
	}

	_, err = f.Feature(2)
	if !errors.Is(err, ErrMissingPosition) {
		t.Errorf("Feature: error return %v, should be ErrMissingPosition", err)
	}
	_, err = f.Feature(3)
	if err != ErrInvalidFeatureIndex {
		t.Errorf("Feature: error return %v, should be ErrInvalidFeatureIndex", err)
	}
	_, err = f.Features()
	if !errors.Is(err, ErrMissingPosition) {
		t.Errorf("Features: error return %v, should be ErrMissingPosition", err)
	}
}

func TestReadInvalid(t *testing.T) {
	_, err := Read(strings.NewReader(`<mzML></mzML>`))
	if err == nil {
		t.Errorf("Read: expected error for wrong root element")
	}
}
