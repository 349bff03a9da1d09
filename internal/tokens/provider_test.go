package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

func testUser() *models.User {
	return &models.User{
		ID:            "11111111-1111-1111-1111-111111111111",
		Email:         "a@x.com",
		PhoneNumber:   "+15550100",
		SecurityStamp: "stamp-one",
	}
}

func TestEmailCodeRoundTrip(t *testing.T) {
	p := New()
	user := testUser()

	code := p.EmailCode(user)
	require.NotEmpty(t, code)

	// Transport encoding must survive a round trip.
	decoded, err := Decode(Encode(code))
	require.NoError(t, err)
	require.NoError(t, p.VerifyEmailCode(user, decoded))
}

func TestEmailCodeRejectsTampering(t *testing.T) {
	p := New()
	user := testUser()

	code := p.EmailCode(user)

	err := p.VerifyEmailCode(user, code+"0")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	err = p.VerifyEmailCode(user, "")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestEmailCodeBoundToAddress(t *testing.T) {
	p := New()
	user := testUser()

	code := p.EmailCode(user)

	user.Email = "b@x.com"
	assert.ErrorIs(t, p.VerifyEmailCode(user, code), ErrCodeInvalid)
}

func TestStampRotationInvalidatesCodes(t *testing.T) {
	p := New()
	user := testUser()

	emailCode := p.EmailCode(user)
	phoneCode, err := p.PhoneCode(user)
	require.NoError(t, err)

	user.SecurityStamp = models.NewSecurityStamp()

	assert.ErrorIs(t, p.VerifyEmailCode(user, emailCode), ErrCodeInvalid)
	assert.ErrorIs(t, p.VerifyPhoneCode(user, phoneCode), ErrCodeInvalid)
}

func TestPhoneCode(t *testing.T) {
	p := New()
	user := testUser()

	code, err := p.PhoneCode(user)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	require.NoError(t, p.VerifyPhoneCode(user, code))

	// A code for one number must not confirm another.
	other := testUser()
	other.PhoneNumber = "+15550199"
	assert.ErrorIs(t, p.VerifyPhoneCode(other, code), ErrCodeInvalid)
}

func TestPhoneCodeExpires(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	p := New()
	p.now = func() time.Time { return issued }

	user := testUser()

	code, err := p.PhoneCode(user)
	require.NoError(t, err)

	// Within the skew window the code still verifies.
	p.now = func() time.Time { return issued.Add(phonePeriod * time.Second) }
	require.NoError(t, p.VerifyPhoneCode(user, code))

	// Two periods later it does not.
	p.now = func() time.Time { return issued.Add(3 * phonePeriod * time.Second) }
	assert.ErrorIs(t, p.VerifyPhoneCode(user, code), ErrCodeInvalid)
}

func TestPhoneCodeMalformed(t *testing.T) {
	p := New()

	assert.ErrorIs(t, p.VerifyPhoneCode(testUser(), "not-a-code"), ErrCodeMalformed)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode("%%%not-base64%%%")
	assert.ErrorIs(t, err, ErrCodeMalformed)
}
