package userrepo

import (
	"context"
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// Address is the structured address sub-object of a profile.
type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

func (a *Address) blank() bool {
	return a == nil || (strings.TrimSpace(a.Formatted) == "" &&
		strings.TrimSpace(a.StreetAddress) == "" &&
		strings.TrimSpace(a.Locality) == "" &&
		strings.TrimSpace(a.Region) == "" &&
		strings.TrimSpace(a.PostalCode) == "" &&
		strings.TrimSpace(a.Country) == "")
}

// Profile is the standardized claims representation projected from a
// user's NORMAL attributes.
type Profile struct {
	Subject     string   `json:"sub"`
	Email       string   `json:"email,omitempty"`
	Verified    bool     `json:"email_verified"`
	Name        string   `json:"name,omitempty"`
	GivenName   string   `json:"given_name,omitempty"`
	FamilyName  string   `json:"family_name,omitempty"`
	MiddleName  string   `json:"middle_name,omitempty"`
	Nickname    string   `json:"nickname,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Picture     string   `json:"picture,omitempty"`
	ProfileURL  string   `json:"profile,omitempty"`
	Website     string   `json:"website,omitempty"`
	Zoneinfo    string   `json:"zoneinfo,omitempty"`
	UpdatedTime string   `json:"updated_time,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// ProfileFromUser projects the user's NORMAL attributes onto the
// standardized claims. REMOTE attributes are skipped; their values live
// behind an access token and are never projected. The address
// sub-object is present only when at least one component is non-blank.
func ProfileFromUser(u *User) *Profile {
	amap := u.NormalAttributes()

	p := &Profile{
		Subject:     u.ID.String(),
		Email:       u.Email,
		Verified:    u.EmailConfirmed,
		Name:        amap[AttrName],
		GivenName:   amap[AttrFirstName],
		FamilyName:  amap[AttrLastName],
		MiddleName:  amap[AttrMiddleName],
		Nickname:    amap[AttrNickname],
		Gender:      amap[AttrGender],
		Locale:      amap[AttrLocale],
		PhoneNumber: amap[AttrPhoneNumber],
		Picture:     amap[AttrPicture],
		ProfileURL:  amap[AttrProfile],
		Website:     amap[AttrWebsite],
		Zoneinfo:    amap[AttrZoneinfo],
		UpdatedTime: amap[AttrUpdatedTime],
	}

	addr := &Address{
		Formatted:     amap[AttrFormattedAddress],
		StreetAddress: amap[AttrStreetAddress],
		Locality:      amap[AttrLocality],
		Region:        amap[AttrRegion],
		PostalCode:    amap[AttrPostalCode],
		Country:       amap[AttrCountry],
	}
	if !addr.blank() {
		p.Address = addr
	}

	return p
}

// ApplyProfile writes the profile's non-blank claims onto the user as
// NORMAL attributes. The write policy is upsert-by-name: an existing
// NORMAL attribute of the same name is replaced rather than duplicated.
// REMOTE attributes are never produced, overwritten, or deleted here.
func ApplyProfile(u *User, p *Profile) {
	if strings.TrimSpace(p.Email) != "" {
		u.Email = p.Email
	}

	setClaim(u, AttrName, p.Name)
	setClaim(u, AttrFirstName, p.GivenName)
	setClaim(u, AttrLastName, p.FamilyName)
	setClaim(u, AttrMiddleName, p.MiddleName)
	setClaim(u, AttrNickname, p.Nickname)
	setClaim(u, AttrGender, p.Gender)
	setClaim(u, AttrLocale, p.Locale)
	setClaim(u, AttrPhoneNumber, normalizePhone(p.PhoneNumber))
	setClaim(u, AttrPicture, p.Picture)
	setClaim(u, AttrProfile, p.ProfileURL)
	setClaim(u, AttrWebsite, p.Website)
	setClaim(u, AttrZoneinfo, p.Zoneinfo)
	setClaim(u, AttrUpdatedTime, p.UpdatedTime)

	if p.Address != nil {
		setClaim(u, AttrFormattedAddress, p.Address.Formatted)
		setClaim(u, AttrStreetAddress, p.Address.StreetAddress)
		setClaim(u, AttrLocality, p.Address.Locality)
		setClaim(u, AttrRegion, p.Address.Region)
		setClaim(u, AttrPostalCode, p.Address.PostalCode)
		setClaim(u, AttrCountry, p.Address.Country)
	}

	u.EmailConfirmed = p.Verified
}

func setClaim(u *User, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	u.SetAttribute(name, value)
}

// normalizePhone renders a parseable phone claim in E.164. Values the
// parser rejects pass through unchanged.
func normalizePhone(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// GetProfile returns the claims projection for the user addressed by
// the profile subject: the store-assigned id, falling back to the
// username for users created from an external identity source.
func (m *Manager) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidInput("userId should never be empty")
	}

	user, err := m.findBySubject(ctx, userID)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, err
		}
		return nil, m.systemFailure("getProfile", err)
	}

	return ProfileFromUser(user), nil
}

// SaveProfile applies the profile's claims to the addressed user,
// lazily creating the account when the subject is unknown. Created
// users get a random throwaway credential: they authenticate through an
// external identity source, never with a password held here.
func (m *Manager) SaveProfile(ctx context.Context, p *Profile) (*Profile, error) {
	if p == nil || strings.TrimSpace(p.Subject) == "" {
		return nil, invalidInput("profile subject should never be empty")
	}

	user, err := m.findBySubject(ctx, p.Subject)
	if err != nil && !IsUserNotFound(err) {
		return nil, m.systemFailure("saveProfile", err)
	}

	created := false
	if err != nil {
		user, err = m.newExternalUser(p.Subject)
		if err != nil {
			return nil, m.systemFailure("saveProfile", err)
		}
		created = true
	}

	ApplyProfile(user, p)

	if created {
		err = m.store.Insert(ctx, user)
	} else {
		err = m.store.Update(ctx, user)
	}
	if err != nil {
		return nil, m.systemFailure("saveProfile", err)
	}

	return ProfileFromUser(user), nil
}

// RemoveProfile deletes the user addressed by the profile subject. A
// missing user is ignored.
func (m *Manager) RemoveProfile(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalidInput("userId should never be empty")
	}

	user, err := m.findBySubject(ctx, userID)
	if err != nil {
		if IsUserNotFound(err) {
			return nil
		}
		return m.systemFailure("removeProfile", err)
	}

	if err := m.store.Delete(ctx, user); err != nil {
		return m.systemFailure("removeProfile", err)
	}
	return nil
}

// AllProfiles projects every stored user.
func (m *Manager) AllProfiles(ctx context.Context) ([]*Profile, error) {
	users, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, m.systemFailure("allProfiles", err)
	}

	out := make([]*Profile, 0, len(users))
	for _, u := range users {
		out = append(out, ProfileFromUser(u))
	}
	return out, nil
}

func (m *Manager) findBySubject(ctx context.Context, subject string) (*User, error) {
	if _, err := uuid.Parse(subject); err == nil {
		user, err := m.store.FindByID(ctx, subject)
		if err == nil || !IsUserNotFound(err) {
			return user, err
		}
	}
	return m.store.FindByUsername(ctx, subject)
}

// newExternalUser builds an account shell for a subject sourced from an
// external identity provider.
func (m *Manager) newExternalUser(subject string) (*User, error) {
	salt, err := NewSalt(m.entropy)
	if err != nil {
		return nil, err
	}
	hash, err := SaltedHash(salt, RandomThrowawayPassword())
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     subject,
		PasswordHash: hash,
		PasswordSalt: salt,
		Attributes:   []*UserAttribute{},
	}

	if m.useHashID {
		if id, err := hashid.NewUUID(subject); err == nil {
			user.ID = id
		}
	}

	return user, nil
}
