// Package asset provides the asset domain model.
// An asset is a scanned host identified by its hostname; the scan importer
// creates assets on first sight and merges feed attributes on every
// subsequent import without touching manually maintained fields.
package asset

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// MaxHostnameLength is the RFC 1035 limit for a full hostname.
const MaxHostnameLength = 253

// Asset represents a networked asset tracked by the vulnerability importer.
type Asset struct {
	id              shared.ID
	hostname        string
	localIP         string
	owner           string
	hostGroups      []string
	cloudAccountID  string
	cloudInstanceID string
	osVersion       string
	adDomain        string
	createdAt       time.Time
	updatedAt       time.Time
	lastSeenAt      time.Time
}

// ScanAttributes are the asset fields a scan feed may supply.
// Owner is deliberately absent: ownership is a manual annotation and is
// never written by an import.
type ScanAttributes struct {
	LocalIP         string
	HostGroups      []string
	CloudAccountID  string
	CloudInstanceID string
	OSVersion       string
	ADDomain        string
}

// NewAsset creates a new Asset from a feed hostname.
func NewAsset(hostname string) (*Asset, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", shared.ErrValidation)
	}
	if len(hostname) > MaxHostnameLength {
		return nil, fmt.Errorf("%w: hostname exceeds %d characters", shared.ErrValidation, MaxHostnameLength)
	}
	if strings.ContainsAny(hostname, " \t\n") {
		return nil, fmt.Errorf("%w: hostname must not contain whitespace", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Asset{
		id:         shared.NewID(),
		hostname:   hostname,
		hostGroups: []string{},
		createdAt:  now,
		updatedAt:  now,
		lastSeenAt: now,
	}, nil
}

// Data holds the raw fields needed to reconstitute an Asset.
type Data struct {
	ID              shared.ID
	Hostname        string
	LocalIP         string
	Owner           string
	HostGroups      []string
	CloudAccountID  string
	CloudInstanceID string
	OSVersion       string
	ADDomain        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastSeenAt      time.Time
}

// Reconstitute recreates an Asset from persistence.
func Reconstitute(data Data) *Asset {
	groups := data.HostGroups
	if groups == nil {
		groups = []string{}
	}
	return &Asset{
		id:              data.ID,
		hostname:        data.Hostname,
		localIP:         data.LocalIP,
		owner:           data.Owner,
		hostGroups:      groups,
		cloudAccountID:  data.CloudAccountID,
		cloudInstanceID: data.CloudInstanceID,
		osVersion:       data.OSVersion,
		adDomain:        data.ADDomain,
		createdAt:       data.CreatedAt,
		updatedAt:       data.UpdatedAt,
		lastSeenAt:      data.LastSeenAt,
	}
}

// Getters

func (a *Asset) ID() shared.ID           { return a.id }
func (a *Asset) Hostname() string        { return a.hostname }
func (a *Asset) LocalIP() string         { return a.localIP }
func (a *Asset) Owner() string           { return a.owner }
func (a *Asset) CloudAccountID() string  { return a.cloudAccountID }
func (a *Asset) CloudInstanceID() string { return a.cloudInstanceID }
func (a *Asset) OSVersion() string       { return a.osVersion }
func (a *Asset) ADDomain() string        { return a.adDomain }
func (a *Asset) CreatedAt() time.Time    { return a.createdAt }
func (a *Asset) UpdatedAt() time.Time    { return a.updatedAt }
func (a *Asset) LastSeenAt() time.Time   { return a.lastSeenAt }

// HostGroups returns a copy of the host group memberships.
func (a *Asset) HostGroups() []string {
	groups := make([]string, len(a.hostGroups))
	copy(groups, a.hostGroups)
	return groups
}

// IdentityKey returns the case-insensitive lookup key for this asset.
func (a *Asset) IdentityKey() string {
	return NormalizeHostname(a.hostname)
}

// RootDomain derives the registrable apex domain from the hostname,
// e.g. "db01.eu.example.com" -> "example.com". Returns "" for bare
// hostnames without a public suffix.
func (a *Asset) RootDomain() string {
	host := NormalizeHostname(a.hostname)
	if !strings.Contains(host, ".") {
		return ""
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return root
}

// MergeScanAttributes applies feed-supplied attributes to an existing asset.
// Non-empty feed fields overwrite; host groups are appended and deduplicated;
// owner and other manual annotations are preserved untouched.
func (a *Asset) MergeScanAttributes(attrs ScanAttributes) {
	if attrs.LocalIP != "" {
		a.localIP = attrs.LocalIP
	}
	if attrs.CloudAccountID != "" {
		a.cloudAccountID = attrs.CloudAccountID
	}
	if attrs.CloudInstanceID != "" {
		a.cloudInstanceID = attrs.CloudInstanceID
	}
	if attrs.OSVersion != "" {
		a.osVersion = attrs.OSVersion
	}
	if attrs.ADDomain != "" {
		a.adDomain = attrs.ADDomain
	}
	for _, group := range attrs.HostGroups {
		a.addHostGroup(group)
	}
	now := time.Now().UTC()
	a.updatedAt = now
	a.lastSeenAt = now
}

// SetOwner records the responsible owner. Manual operation, never called
// by the importer.
func (a *Asset) SetOwner(owner string) {
	a.owner = strings.TrimSpace(owner)
	a.updatedAt = time.Now().UTC()
}

func (a *Asset) addHostGroup(group string) {
	group = strings.TrimSpace(group)
	if group == "" {
		return
	}
	for _, existing := range a.hostGroups {
		if strings.EqualFold(existing, group) {
			return
		}
	}
	a.hostGroups = append(a.hostGroups, group)
}

// NormalizeHostname returns the canonical identity form of a hostname:
// trimmed, lowercased, trailing dot removed.
func NormalizeHostname(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	return strings.TrimSuffix(hostname, ".")
}
