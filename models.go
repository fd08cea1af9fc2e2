package userrepo

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AttributeType distinguishes literal attribute values from remote ones.
type AttributeType int16

const (
	// AttributeNormal is a literal stored value.
	AttributeNormal AttributeType = 0
	// AttributeRemote is a pointer to a value fetched from a remote
	// resource. The access token is needed to obtain the data and the
	// expiration is the expiration of that token.
	AttributeRemote AttributeType = 1
)

// Well-known attribute names recognized by the profile projector. Any
// other name is carried as an extended attribute.
const (
	AttrFirstName        = "FIRST_NAME"
	AttrLastName         = "LAST_NAME"
	AttrMiddleName       = "MIDDLE_NAME"
	AttrName             = "NAME"
	AttrNickname         = "NICKNAME"
	AttrGender           = "GENDER"
	AttrLocale           = "LOCALE"
	AttrPhoneNumber      = "PHONE_NUMBER"
	AttrPicture          = "PICTURE"
	AttrProfile          = "PROFILE"
	AttrWebsite          = "WEBSITE"
	AttrZoneinfo         = "ZONEINFO"
	AttrUpdatedTime      = "UPDATED_TIME"
	AttrStreetAddress    = "STREET_ADDRESS"
	AttrFormattedAddress = "FORMATTED_ADDRESS"
	AttrLocality         = "LOCALITY"
	AttrRegion           = "REGION"
	AttrPostalCode       = "POSTAL_CODE"
	AttrCountry          = "COUNTRY"
)

// RoleAdmin is the administrative role seeded by EnsureDefaultAdmin.
const RoleAdmin = "ADMIN"

// User is the identity record. Password hash and salt are always set
// together; the confirmation hash is non-nil only between a Reset call
// and a matching CheckConfirmation or password change.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID               uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username         string           `bun:"username,notnull,unique" json:"username,omitempty"`
	Email            string           `bun:"email" json:"email,omitempty"`
	PasswordHash     string           `bun:"password_hash,notnull" json:"-"`
	PasswordSalt     int32            `bun:"password_salt,notnull" json:"-"`
	FailedAttempts   int              `bun:"failed_attempts,notnull,default:0" json:"failed_attempts,omitempty"`
	EmailConfirmed   bool             `bun:"email_confirmed,notnull,default:false" json:"email_confirmed,omitempty"`
	ConfirmationHash *string          `bun:"confirmation_hash,nullzero" json:"-"`
	Updated          *time.Time       `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	Attributes       []*UserAttribute `bun:"rel:has-many,join:id=user_id" json:"attributes,omitempty"`
	Roles            []*Role          `bun:"m2m:user_roles,join:User=Role" json:"roles,omitempty"`
}

// Locked reports whether the account has reached the failed attempt limit.
func (u *User) Locked(limit int) bool {
	return u.FailedAttempts >= limit
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r != nil && r.Name == name {
			return true
		}
	}
	return false
}

// NormalAttributes flattens the NORMAL attributes into a name/value map.
// REMOTE attributes are skipped; their values live behind an access token.
// When duplicates exist the last one wins.
func (u *User) NormalAttributes() map[string]string {
	out := make(map[string]string, len(u.Attributes))
	for _, attr := range u.Attributes {
		if attr == nil || attr.Type != AttributeNormal {
			continue
		}
		out[attr.Name] = attr.Value
	}
	return out
}

// SetAttribute upserts a NORMAL attribute by name. An existing NORMAL
// attribute with the same name has its value replaced in place; REMOTE
// attributes with the same name are left alone.
func (u *User) SetAttribute(name, value string) {
	for _, attr := range u.Attributes {
		if attr != nil && attr.Type == AttributeNormal && attr.Name == name {
			attr.Value = value
			return
		}
	}
	attr := NewAttribute(name, value)
	attr.UserID = u.ID
	u.Attributes = append(u.Attributes, attr)
}

// UserAttribute is a named, typed fact about a user. Attributes are
// owned by their user and deleted with it; roles are not.
type UserAttribute struct {
	bun.BaseModel `bun:"table:user_attributes,alias:ua"`

	ID          uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID      uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Name        string        `bun:"attr_name,notnull" json:"name,omitempty"`
	Type        AttributeType `bun:"attr_type,notnull,default:0" json:"type"`
	Value       string        `bun:"attr_value" json:"value,omitempty"`
	AccessToken string        `bun:"access_token,nullzero" json:"-"`
	Expiration  *time.Time    `bun:"token_expiration,nullzero" json:"expiration,omitempty"`
}

// NewAttribute builds a NORMAL attribute. Names are truncated to the
// 32-character column convention.
func NewAttribute(name, value string) *UserAttribute {
	name = strings.TrimSpace(name)
	if len(name) > 32 {
		name = name[:32]
	}
	return &UserAttribute{
		Name:  name,
		Type:  AttributeNormal,
		Value: value,
	}
}

// Equal excludes the owning-user back-reference: two attributes with
// identical name, type, value, access token, and expiration compare
// equal regardless of which user holds them.
func (a *UserAttribute) Equal(b *UserAttribute) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.Type != b.Type || a.Value != b.Value || a.AccessToken != b.AccessToken {
		return false
	}
	if (a.Expiration == nil) != (b.Expiration == nil) {
		return false
	}
	if a.Expiration != nil && !a.Expiration.Equal(*b.Expiration) {
		return false
	}
	return true
}

// Role is a named group shared by many users. Roles outlive their
// members: deleting a user never deletes its roles.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`

	ID   uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name string    `bun:"name,notnull,unique" json:"name,omitempty"`
}

// UserToRole is the join model backing the users/roles m2m relation.
type UserToRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID uuid.UUID `bun:"user_id,pk,type:uuid"`
	User   *User     `bun:"rel:belongs-to,join:user_id=id"`
	RoleID uuid.UUID `bun:"role_id,pk,type:uuid"`
	Role   *Role     `bun:"rel:belongs-to,join:role_id=id"`
}
