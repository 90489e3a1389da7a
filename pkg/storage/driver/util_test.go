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
	"encoding/base64"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

func TestCampaignCodecRoundTrip(t *testing.T) {
	stub := campaignStub("smug-pigeon", campaign.StatusProcessing, campaign.PriorityHigh)

	data, err := encodeCampaign(stub)
	if err != nil {
		t.Fatalf("failed to encode campaign: %s", err)
	}

	got, err := decodeCampaign(data)
	if err != nil {
		t.Fatalf("failed to decode campaign: %s", err)
	}
	if !reflect.DeepEqual(stub, got) {
		t.Errorf("expected %v, got %v", stub, got)
	}
}

func TestDecodeUncompressedDoc(t *testing.T) {
	stub := campaignStub("smug-pigeon", campaign.StatusPending, campaign.PriorityMedium)

	// documents written before compression was introduced are plain
	// base64 encoded JSON
	b, err := json.Marshal(stub)
	if err != nil {
		t.Fatalf("failed to marshal campaign: %s", err)
	}

	got, err := decodeCampaign(base64.StdEncoding.EncodeToString(b))
	if err != nil {
		t.Fatalf("failed to decode campaign: %s", err)
	}
	if !reflect.DeepEqual(stub, got) {
		t.Errorf("expected %v, got %v", stub, got)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := decodeCampaign("not base64!"); err == nil {
		t.Error("expected a base64 decode error")
	}
	if _, err := decodeCampaign(base64.StdEncoding.EncodeToString([]byte("not json"))); err == nil {
		t.Error("expected a JSON decode error")
	}
}

func TestCampaignLabels(t *testing.T) {
	stub := campaignStub("smug-pigeon", campaign.StatusPending, campaign.PriorityUrgent)

	lbs := campaignLabels(stub)
	expect := labels{
		"name":     "smug-pigeon",
		"owner":    "coxswain",
		"status":   "pending",
		"priority": "urgent",
	}
	if !reflect.DeepEqual(lbs, expect) {
		t.Errorf("expected %v, got %v", expect, lbs)
	}
}
