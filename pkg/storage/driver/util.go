/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

var b64 = base64.StdEncoding

var magicGzip = []byte{0x1f, 0x8b, 0x08}

// encodeDoc encodes a document returning a base64 encoded
// gzipped string representation, or error.
func encodeDoc(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err = w.Write(b); err != nil {
		return "", err
	}
	w.Close()

	return b64.EncodeToString(buf.Bytes()), nil
}

// decodeDoc decodes the bytes of data into v. Data must contain a base64
// encoded string of a valid document, gzipped or plain.
func decodeDoc(data string, v interface{}) error {
	b, err := b64.DecodeString(data)
	if err != nil {
		return err
	}

	// Documents written before compression was introduced are stored
	// plain; skip decompression when the gzip magic header is missing.
	if len(b) > 3 && bytes.Equal(b[0:3], magicGzip) {
		r, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return err
		}
		defer r.Close()
		b2, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		b = b2
	}

	return json.Unmarshal(b, v)
}

func encodeCampaign(c *campaign.Campaign) (string, error) { return encodeDoc(c) }

func decodeCampaign(data string) (*campaign.Campaign, error) {
	var c campaign.Campaign
	if err := decodeDoc(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func encodeEngineRelease(rel *engine.Release) (string, error) { return encodeDoc(rel) }

func decodeEngineRelease(data string) (*engine.Release, error) {
	var rel engine.Release
	if err := decodeDoc(data, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func encodeReuse(rec *engine.ReuseRecord) (string, error) { return encodeDoc(rec) }

func decodeReuse(data string) (*engine.ReuseRecord, error) {
	var rec engine.ReuseRecord
	if err := decodeDoc(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// campaignLabels computes the label set describing a campaign, used for
// Query across all drivers and as object labels on the configmap driver.
func campaignLabels(c *campaign.Campaign) labels {
	var lbs labels
	lbs.init()
	lbs.set("name", c.ID)
	lbs.set("owner", OwnerLabelValue)
	lbs.set("status", c.Status.String())
	lbs.set("priority", c.Priority.String())
	return lbs
}

// OwnerLabelValue marks every storage object this system writes.
const OwnerLabelValue = "coxswain"
