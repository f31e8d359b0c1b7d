package domain

import "time"

// Profile holds the editorial-facing user profile. One-to-one with User.
type Profile struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	FullName     string    `json:"full_name" dynamodbav:"full_name"`
	Gender       string    `json:"gender" dynamodbav:"gender"`
	DateOfBirth  string    `json:"date_of_birth" dynamodbav:"date_of_birth"` // YYYY-MM-DD
	PhoneNumber  string    `json:"phone_number" dynamodbav:"phone_number"`
	Domicile     string    `json:"domicile" dynamodbav:"domicile"`
	NewsInterest string    `json:"news_interest" dynamodbav:"news_interest"`
	Headline     string    `json:"headline" dynamodbav:"headline"`
	Biography    string    `json:"biography" dynamodbav:"biography"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// IsComplete reports whether every profile field required by the login
// contract is filled in. A nil profile is never complete.
func (p *Profile) IsComplete() bool {
	if p == nil {
		return false
	}
	fields := []string{
		p.FullName,
		p.Gender,
		p.DateOfBirth,
		p.PhoneNumber,
		p.Domicile,
		p.NewsInterest,
		p.Headline,
		p.Biography,
	}
	for _, f := range fields {
		if f == "" {
			return false
		}
	}
	return true
}

type UpdateProfileRequest struct {
	FullName     *string `json:"full_name"`
	Gender       *string `json:"gender"`
	DateOfBirth  *string `json:"date_of_birth"`
	PhoneNumber  *string `json:"phone_number"`
	Domicile     *string `json:"domicile"`
	NewsInterest *string `json:"news_interest"`
	Headline     *string `json:"headline"`
	Biography    *string `json:"biography"`
}
