package roles

// SupplierRecord is one entry of the supplier registry. RecordID is the registry key, which is
// unrelated to identity ids; ID optionally carries the supplier's identity uid.
type SupplierRecord struct {
	RecordID   string `json:"recordId" dynamodbav:"record_id"`
	ID         string `json:"id,omitempty" dynamodbav:"id,omitempty"`
	Email      string `json:"email" dynamodbav:"email"`
	Name       string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Department string `json:"department,omitempty" dynamodbav:"department,omitempty"`
	Phone      string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Address    string `json:"address,omitempty" dynamodbav:"address,omitempty"`
}

// AdminRecord is one entry of the admin registry.
type AdminRecord struct {
	RecordID    string   `json:"recordId" dynamodbav:"record_id"`
	Email       string   `json:"email" dynamodbav:"email"`
	Name        string   `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty" dynamodbav:"permissions,omitempty,stringset"`
}

// Roles is the combined resolution result.
type Roles struct {
	IsSupplier bool
	IsAdmin    bool
	Supplier   *SupplierRecord
	Admin      *AdminRecord
}
