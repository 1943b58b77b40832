package domain

import "time"

// Profile is the application-level user record carrying the role.
// One row per identity; deactivation flips Active instead of deleting.
type Profile struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	Role      Role      `json:"role" bson:"role"`
	FirstName string    `json:"first_name,omitempty" bson:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty" bson:"last_name,omitempty"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// VendorAddress holds the postal fields of a vendor.
type VendorAddress struct {
	Street  string `json:"street,omitempty" bson:"street,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	State   string `json:"state,omitempty" bson:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty" bson:"zip_code,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
}

// VendorRecord exists for every vendor-role identity. Verified is only
// changed by an admin.
type VendorRecord struct {
	ID          string        `json:"id" bson:"_id"`
	UserID      string        `json:"user_id" bson:"user_id"`
	CompanyName string        `json:"company_name" bson:"company_name"`
	VendorType  string        `json:"vendor_type,omitempty" bson:"vendor_type,omitempty"`
	Verified    bool          `json:"verified" bson:"verified"`
	Address     VendorAddress `json:"address" bson:"address"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" bson:"updated_at"`
}

// AdminRecord marks an identity as an administrator.
type AdminRecord struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
