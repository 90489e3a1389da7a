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
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kblabels "k8s.io/apimachinery/pkg/labels"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

func campaignStub(id string, status campaign.Status, priority campaign.Priority) *campaign.Campaign {
	return campaign.Mock(&campaign.MockCampaignOptions{
		ID:         id,
		Status:     status,
		Priority:   priority,
		Benchmarks: 1,
	})
}

func testKey(id string) string {
	return "cox.campaign.v1." + id
}

func tsFixtureMemory(t *testing.T) *Memory {
	t.Helper()
	cs := []*campaign.Campaign{
		campaignStub("campaign-a", campaign.StatusPending, campaign.PriorityMedium),
		campaignStub("campaign-b", campaign.StatusPending, campaign.PriorityUrgent),
		campaignStub("campaign-c", campaign.StatusProcessing, campaign.PriorityLow),
		campaignStub("campaign-d", campaign.StatusCompleted, campaign.PriorityMedium),
	}
	mem := NewMemory()
	for _, c := range cs {
		if err := mem.Create(testKey(c.ID), c); err != nil {
			t.Fatalf("failed to create campaign: %s", err)
		}
	}
	return mem
}

// newTestFixtureCfgMaps initializes a MockConfigMapsInterface.
// Campaigns are stored under the given fixture.
func newTestFixtureCfgMaps(t *testing.T, cs ...*campaign.Campaign) *ConfigMaps {
	t.Helper()
	var mock MockConfigMapsInterface
	mock.Init(t, cs...)
	return NewConfigMaps(&mock)
}

// MockConfigMapsInterface mocks a kubernetes ConfigMapsInterface
type MockConfigMapsInterface struct {
	corev1.ConfigMapInterface

	objects map[string]*v1.ConfigMap
}

// Init initializes the MockConfigMapsInterface with the set of campaigns.
func (mock *MockConfigMapsInterface) Init(t *testing.T, cs ...*campaign.Campaign) {
	t.Helper()
	mock.objects = map[string]*v1.ConfigMap{}

	for _, c := range cs {
		objkey := testKey(c.ID)
		cfgmap, err := newConfigMapsObject(objkey, c, nil)
		if err != nil {
			t.Fatalf("failed to create configmap: %s", err)
		}
		mock.objects[objkey] = cfgmap
	}
}

// Get returns the ConfigMap by name.
func (mock *MockConfigMapsInterface) Get(_ context.Context, name string, _ metav1.GetOptions) (*v1.ConfigMap, error) {
	object, ok := mock.objects[name]
	if !ok {
		return nil, apierrors.NewNotFound(v1.Resource("tests"), name)
	}
	return object, nil
}

// List returns the set of ConfigMaps matching the selector.
func (mock *MockConfigMapsInterface) List(_ context.Context, opts metav1.ListOptions) (*v1.ConfigMapList, error) {
	var list v1.ConfigMapList

	labelSelector, err := kblabels.Parse(opts.LabelSelector)
	if err != nil {
		return nil, err
	}

	for _, cfgmap := range mock.objects {
		if labelSelector.Matches(kblabels.Set(cfgmap.ObjectMeta.Labels)) {
			list.Items = append(list.Items, *cfgmap)
		}
	}
	return &list, nil
}

// Create creates a new ConfigMap.
func (mock *MockConfigMapsInterface) Create(_ context.Context, cfgmap *v1.ConfigMap, _ metav1.CreateOptions) (*v1.ConfigMap, error) {
	name := cfgmap.ObjectMeta.Name
	if object, ok := mock.objects[name]; ok {
		return object, apierrors.NewAlreadyExists(v1.Resource("tests"), name)
	}
	mock.objects[name] = cfgmap
	return cfgmap, nil
}

// Update updates a ConfigMap.
func (mock *MockConfigMapsInterface) Update(_ context.Context, cfgmap *v1.ConfigMap, _ metav1.UpdateOptions) (*v1.ConfigMap, error) {
	name := cfgmap.ObjectMeta.Name
	if _, ok := mock.objects[name]; !ok {
		return nil, apierrors.NewNotFound(v1.Resource("tests"), name)
	}
	mock.objects[name] = cfgmap
	return cfgmap, nil
}

// Delete deletes a ConfigMap by name.
func (mock *MockConfigMapsInterface) Delete(_ context.Context, name string, _ metav1.DeleteOptions) error {
	if _, ok := mock.objects[name]; !ok {
		return apierrors.NewNotFound(v1.Resource("tests"), name)
	}
	delete(mock.objects, name)
	return nil
}

// newTestFixtureSQL mocks the SQL database (for testing purposes)
func newTestFixtureSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error when opening stub database connection: %v", err)
	}

	sqlxDB := sqlx.NewDb(sqlDB, "sqlmock")
	return &SQL{
		db:               sqlxDB,
		Log:              func(_ string, _ ...interface{}) {},
		statementBuilder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, mock
}
