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
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kblabels "k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

var _ Driver = (*ConfigMaps)(nil)

// ConfigMapsDriverName is the string name of the driver.
const ConfigMapsDriverName = "ConfigMap"

// Object name prefixes for the record families this driver stores. The
// campaign prefix is applied by the storage facade before keys reach the
// driver; the engine and reuse names are internal to this driver.
const (
	engineKeyPrefix = "cox.engine.v1."
	reuseKeyName    = "cox.reuse.v1"
)

// ConfigMaps is a wrapper around an implementation of a kubernetes
// ConfigMapsInterface.
type ConfigMaps struct {
	impl corev1.ConfigMapInterface
	Log  func(string, ...interface{})
}

// NewConfigMaps initializes a new ConfigMaps wrapping an implementation of
// the kubernetes ConfigMapsInterface.
func NewConfigMaps(impl corev1.ConfigMapInterface) *ConfigMaps {
	return &ConfigMaps{
		impl: impl,
		Log:  func(_ string, _ ...interface{}) {},
	}
}

// Name returns the name of the driver.
func (cfgmaps *ConfigMaps) Name() string {
	return ConfigMapsDriverName
}

// Get fetches the campaign named by key. The corresponding campaign is
// returned or error if not found.
func (cfgmaps *ConfigMaps) Get(key string) (*campaign.Campaign, error) {
	// fetch the configmap holding the campaign named by key
	obj, err := cfgmaps.impl.Get(context.Background(), key, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrCampaignNotFound
		}
		return nil, errors.Wrapf(err, "get: failed to get %q", key)
	}
	// found the configmap, decode the base64 data string
	c, err := decodeCampaign(obj.Data["campaign"])
	return c, errors.Wrapf(err, "get: failed to decode data %q", key)
}

// List fetches all campaigns and returns the list campaigns such
// that filter(campaign) == true. An error is returned if the
// configmap fails to retrieve the campaigns.
func (cfgmaps *ConfigMaps) List(filter func(*campaign.Campaign) bool) ([]*campaign.Campaign, error) {
	lsel := kblabels.Set{"owner": OwnerLabelValue, "kind": "campaign"}.AsSelector()
	opts := metav1.ListOptions{LabelSelector: lsel.String()}

	list, err := cfgmaps.impl.List(context.Background(), opts)
	if err != nil {
		return nil, errors.Wrap(err, "list: failed to list")
	}

	var results []*campaign.Campaign

	// iterate over the configmaps object list
	// and decode each campaign
	for _, item := range list.Items {
		c, err := decodeCampaign(item.Data["campaign"])
		if err != nil {
			cfgmaps.Log("list: failed to decode campaign %q: %s", item.Name, err)
			continue
		}
		if filter(c) {
			results = append(results, c)
		}
	}
	return results, nil
}

// Query fetches all campaigns that match the provided map of labels.
// An error is returned if the configmap fails to retrieve the campaigns.
func (cfgmaps *ConfigMaps) Query(labels map[string]string) ([]*campaign.Campaign, error) {
	ls := kblabels.Set{}
	for k, v := range labels {
		if errs := validation.IsValidLabelValue(v); len(errs) != 0 {
			return nil, errors.Errorf("invalid label value: %q: %s", v, strings.Join(errs, "; "))
		}
		ls[k] = v
	}
	ls["kind"] = "campaign"

	opts := metav1.ListOptions{LabelSelector: ls.AsSelector().String()}

	list, err := cfgmaps.impl.List(context.Background(), opts)
	if err != nil {
		return nil, errors.Wrap(err, "query: failed to query with labels")
	}

	if len(list.Items) == 0 {
		return nil, ErrCampaignNotFound
	}

	var results []*campaign.Campaign
	for _, item := range list.Items {
		c, err := decodeCampaign(item.Data["campaign"])
		if err != nil {
			cfgmaps.Log("query: failed to decode campaign %q: %s", item.Name, err)
			continue
		}
		results = append(results, c)
	}
	return results, nil
}

// Create creates a new ConfigMap holding the campaign. If the
// ConfigMap already exists, ErrCampaignExists is returned.
func (cfgmaps *ConfigMaps) Create(key string, c *campaign.Campaign) error {
	// set labels for configmaps object meta data
	var lbs labels

	lbs.init()
	lbs.set("createdAt", strconv.Itoa(int(time.Now().Unix())))

	// create a new configmap to hold the campaign
	obj, err := newConfigMapsObject(key, c, lbs)
	if err != nil {
		return errors.Wrapf(err, "create: failed to encode campaign %q", c.ID)
	}
	// push the configmap object out into the kubiverse
	if _, err := cfgmaps.impl.Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return ErrCampaignExists
		}
		return errors.Wrap(err, "create: failed to create")
	}
	return nil
}

// Update updates the ConfigMap holding the campaign. If not found
// the ConfigMap is created to hold the campaign.
func (cfgmaps *ConfigMaps) Update(key string, c *campaign.Campaign) error {
	// set labels for configmaps object meta data
	var lbs labels

	lbs.init()
	lbs.set("modifiedAt", strconv.Itoa(int(time.Now().Unix())))

	// create a new configmap object to hold the campaign
	obj, err := newConfigMapsObject(key, c, lbs)
	if err != nil {
		return errors.Wrapf(err, "update: failed to encode campaign %q", c.ID)
	}
	// push the configmap object out into the kubiverse
	_, err = cfgmaps.impl.Update(context.Background(), obj, metav1.UpdateOptions{})
	return errors.Wrap(err, "update: failed to update")
}

// Delete deletes the ConfigMap holding the campaign named by key.
func (cfgmaps *ConfigMaps) Delete(key string) (c *campaign.Campaign, err error) {
	// fetch the campaign to check existence
	if c, err = cfgmaps.Get(key); err != nil {
		return nil, err
	}
	// delete the campaign
	err = cfgmaps.impl.Delete(context.Background(), key, metav1.DeleteOptions{})
	return c, err
}

// PutRelease upserts the ConfigMap holding an engine release record.
func (cfgmaps *ConfigMaps) PutRelease(rel *engine.Release) error {
	if rel.Name == "" {
		return ErrInvalidKey
	}
	obj, err := newEngineReleaseObject(rel)
	if err != nil {
		return errors.Wrapf(err, "put release: failed to encode release %q", rel.Name)
	}
	if _, err := cfgmaps.impl.Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return errors.Wrap(err, "put release: failed to create")
		}
		_, err = cfgmaps.impl.Update(context.Background(), obj, metav1.UpdateOptions{})
		return errors.Wrap(err, "put release: failed to update")
	}
	return nil
}

// GetRelease fetches the engine release record with the given name.
func (cfgmaps *ConfigMaps) GetRelease(name string) (*engine.Release, error) {
	obj, err := cfgmaps.impl.Get(context.Background(), engineKeyPrefix+name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrReleaseNotFound
		}
		return nil, errors.Wrapf(err, "get release: failed to get %q", name)
	}
	rel, err := decodeEngineRelease(obj.Data["release"])
	return rel, errors.Wrapf(err, "get release: failed to decode data %q", name)
}

// DeleteRelease deletes the ConfigMap holding an engine release record.
func (cfgmaps *ConfigMaps) DeleteRelease(name string) error {
	err := cfgmaps.impl.Delete(context.Background(), engineKeyPrefix+name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return ErrReleaseNotFound
	}
	return errors.Wrap(err, "delete release: failed to delete")
}

// ListReleases returns every engine release record.
func (cfgmaps *ConfigMaps) ListReleases() ([]*engine.Release, error) {
	lsel := kblabels.Set{"owner": OwnerLabelValue, "kind": "engine-release"}.AsSelector()
	opts := metav1.ListOptions{LabelSelector: lsel.String()}

	list, err := cfgmaps.impl.List(context.Background(), opts)
	if err != nil {
		return nil, errors.Wrap(err, "list releases: failed to list")
	}

	results := make([]*engine.Release, 0, len(list.Items))
	for _, item := range list.Items {
		rel, err := decodeEngineRelease(item.Data["release"])
		if err != nil {
			cfgmaps.Log("list releases: failed to decode release %q: %s", item.Name, err)
			continue
		}
		results = append(results, rel)
	}
	return results, nil
}

// PutReuse upserts the ConfigMap holding the singleton reuse record.
func (cfgmaps *ConfigMaps) PutReuse(rec *engine.ReuseRecord) error {
	obj, err := newReuseObject(rec)
	if err != nil {
		return errors.Wrap(err, "put reuse: failed to encode record")
	}
	if _, err := cfgmaps.impl.Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return errors.Wrap(err, "put reuse: failed to create")
		}
		_, err = cfgmaps.impl.Update(context.Background(), obj, metav1.UpdateOptions{})
		return errors.Wrap(err, "put reuse: failed to update")
	}
	return nil
}

// GetReuse fetches the singleton reuse record.
func (cfgmaps *ConfigMaps) GetReuse() (*engine.ReuseRecord, error) {
	obj, err := cfgmaps.impl.Get(context.Background(), reuseKeyName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrReuseNotFound
		}
		return nil, errors.Wrap(err, "get reuse: failed to get")
	}
	rec, err := decodeReuse(obj.Data["record"])
	return rec, errors.Wrap(err, "get reuse: failed to decode data")
}

// ClearReuse deletes the ConfigMap holding the reuse record. A missing
// record is not an error.
func (cfgmaps *ConfigMaps) ClearReuse() error {
	err := cfgmaps.impl.Delete(context.Background(), reuseKeyName, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrap(err, "clear reuse: failed to delete")
	}
	return nil
}

// newConfigMapsObject constructs a kubernetes ConfigMap object
// to store a campaign. Each configmap data entry is the base64
// encoded gzipped string of a campaign.
//
// The following labels are used within each configmap:
//
//	"modifiedAt" - timestamp indicating when this configmap was last modified. (set in Update)
//	"createdAt"  - timestamp indicating when this configmap was created. (set in Create)
//	"kind"       - kind of the record, always "campaign".
//	"owner"      - owner of the configmap, currently "coxswain".
//	"name"       - id of the campaign.
//	"status"     - status of the campaign (see pkg/campaign/status.go for variants)
//	"priority"   - priority of the campaign (see pkg/campaign/priority.go for variants)
func newConfigMapsObject(key string, c *campaign.Campaign, lbs labels) (*v1.ConfigMap, error) {
	// encode the campaign
	s, err := encodeCampaign(c)
	if err != nil {
		return nil, err
	}

	if lbs == nil {
		lbs.init()
	}

	// apply labels
	lbs.fromMap(campaignLabels(c).toMap())
	lbs.set("kind", "campaign")

	// create and return configmap object
	return &v1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   key,
			Labels: lbs.toMap(),
		},
		Data: map[string]string{"campaign": s},
	}, nil
}

// newEngineReleaseObject constructs a kubernetes ConfigMap object to
// store an engine release record.
func newEngineReleaseObject(rel *engine.Release) (*v1.ConfigMap, error) {
	s, err := encodeEngineRelease(rel)
	if err != nil {
		return nil, err
	}

	var lbs labels
	lbs.init()
	lbs.set("name", rel.Name)
	lbs.set("owner", OwnerLabelValue)
	lbs.set("kind", "engine-release")
	lbs.set("status", rel.Status.String())

	return &v1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   engineKeyPrefix + rel.Name,
			Labels: lbs.toMap(),
		},
		Data: map[string]string{"release": s},
	}, nil
}

// newReuseObject constructs the kubernetes ConfigMap object holding the
// singleton reuse record.
func newReuseObject(rec *engine.ReuseRecord) (*v1.ConfigMap, error) {
	s, err := encodeReuse(rec)
	if err != nil {
		return nil, err
	}

	var lbs labels
	lbs.init()
	lbs.set("owner", OwnerLabelValue)
	lbs.set("kind", "reuse")

	return &v1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   reuseKeyName,
			Labels: lbs.toMap(),
		},
		Data: map[string]string{"record": s},
	}, nil
}
