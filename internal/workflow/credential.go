package workflow

// Flag is a permission checkbox on the user change form, named after the
// form field.
type Flag string

const (
	FlagActive    Flag = "is_active"
	FlagStaff     Flag = "is_staff"
	FlagSuperuser Flag = "is_superuser"
)

// Credential identifies an account of the application under test. It is a
// value: changing a password yields a new Credential.
type Credential struct {
	Username   string `json:"username"`
	Password   string `json:"-"`
	Email      string `json:"email,omitempty"`
	Staff      bool   `json:"staff"`
	Superuser  bool   `json:"superuser"`
	TOTPSecret string `json:"-"`
}

func (c Credential) WithPassword(password string) Credential {
	c.Password = password
	return c
}

// Flags returns the role flags the credential is meant to carry.
func (c Credential) Flags() []Flag {
	var flags []Flag
	if c.Staff {
		flags = append(flags, FlagStaff)
	}
	if c.Superuser {
		flags = append(flags, FlagSuperuser)
	}
	return flags
}

func (c Credential) String() string { return c.Username }
