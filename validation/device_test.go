package validation_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/idpkit/idpkit/oauth2"
	"github.com/stretchr/testify/require"
)

func devicePollForm(deviceCode string) url.Values {
	return url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
	}
}

func TestDeviceGrantService_Start(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("creates a pending authorization", func(t *testing.T) {
		response, err := f.deviceService.Start(f.mustGetClient(t, testDeviceClientID), "openid api1")
		require.NoError(t, err)
		require.NotEmpty(t, response.DeviceCode)
		require.Regexp(t, `^[A-Z]{4}-[A-Z]{4}$`, response.UserCode)
		require.Equal(t, testVerificationURI, response.VerificationURI)
		require.Contains(t, response.VerificationURIComplete, response.UserCode)
		require.Equal(t, 5, response.Interval)
		require.Equal(t, 600, response.ExpiresIn)
	})

	t.Run("client without the device grant is rejected", func(t *testing.T) {
		_, err := f.deviceService.Start(f.mustGetClient(t, testClientID), "openid")
		requireProtocolError(t, err, oauth2.ErrUnauthorizedClient)
	})

	t.Run("invalid scope is rejected", func(t *testing.T) {
		_, err := f.deviceService.Start(f.mustGetClient(t, testDeviceClientID), "profile")
		requireProtocolError(t, err, oauth2.ErrInvalidScope)
	})
}

func TestTokenRequestValidator_DeviceCode(t *testing.T) {
	f := setupTestFixture(t)

	start := func(t *testing.T) *oauth2.DeviceAuthorizationResponse {
		t.Helper()
		response, err := f.deviceService.Start(f.mustGetClient(t, testDeviceClientID), "openid api1")
		require.NoError(t, err)
		return response
	}

	t.Run("pending grant reports authorization_pending", func(t *testing.T) {
		response := start(t)
		validator := f.newTokenValidator()
		req := tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err := validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrAuthorizationPending)
	})

	t.Run("fast polling reports slow_down", func(t *testing.T) {
		response := start(t)
		validator := f.newTokenValidator()

		req := tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err := validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrAuthorizationPending)

		req = tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err = validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrSlowDown)
	})

	t.Run("denied grant reports access_denied", func(t *testing.T) {
		response := start(t)
		require.NoError(t, f.deviceService.Deny(response.UserCode))

		validator := f.newTokenValidator()
		req := tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err := validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrAccessDenied)
	})

	t.Run("approved grant redeems exactly once", func(t *testing.T) {
		response := start(t)
		require.NoError(t, f.deviceService.Approve(response.UserCode, testSubject(f.now), []string{"openid", "api1"}))

		validator := f.newTokenValidator()
		req := tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		result, err := validator.ValidateRequest(req)
		require.NoError(t, err)
		require.Equal(t, testSubjectID, result.Subject.ID)
		require.ElementsMatch(t, []string{"openid", "api1"}, result.GrantedScopes)

		// fresh validator so the throttle cannot mask the replay outcome
		replay := f.newTokenValidator()
		req = tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err = replay.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrInvalidGrant)
	})

	t.Run("expired grant reports expired_token", func(t *testing.T) {
		response := start(t)
		f.advance(11 * time.Minute)

		validator := f.newTokenValidator()
		req := tokenRequest(t, testDeviceClientID, "", devicePollForm(response.DeviceCode))
		_, err := validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrExpiredToken)
	})

	t.Run("unknown code reports expired_token", func(t *testing.T) {
		validator := f.newTokenValidator()
		req := tokenRequest(t, testDeviceClientID, "", devicePollForm("no-such-device-code"))
		_, err := validator.ValidateRequest(req)
		requireProtocolError(t, err, oauth2.ErrExpiredToken)
	})

	t.Run("approval cannot widen the requested scopes", func(t *testing.T) {
		// clock moved in the expiry subtest; grants created now are still valid
		response := start(t)
		err := f.deviceService.Approve(response.UserCode, testSubject(f.now), []string{"openid", "profile"})
		require.Error(t, err)
	})
}
