package larder

type User struct {
	ID          string `dynamodbav:"id" yaml:"id" json:"id" validate:"required"`
	Email       string `dynamodbav:"email" yaml:"email" json:"email" validate:"required,email"`
	DisplayName string `dynamodbav:"displayName,omitempty" yaml:"displayName,omitempty" json:"displayName,omitempty" validate:"max=100"`
	EntityMeta  `yaml:",inline"`
}

func (u *User) GetID() string { return u.ID }

// Owner of a user is the user itself.
func (u *User) Owner() string { return u.ID }

func (u *User) IndexFields() map[string]string {
	return map[string]string{
		"id":    u.ID,
		"email": normalize(u.Email),
	}
}
