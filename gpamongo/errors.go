package gpamongo

import (
	"errors"

	"github.com/lemmego/gpatx"
	"go.mongodb.org/mongo-driver/mongo"
)

// convertMongoError converts MongoDB errors to gpatx errors
func convertMongoError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeNotFound,
			Message: "document not found",
			Cause:   err,
		}
	case errors.Is(err, mongo.ErrClientDisconnected):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "client is disconnected",
			Cause:   err,
		}
	case mongo.IsDuplicateKeyError(err):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeDuplicate,
			Message: "duplicate key violation",
			Cause:   err,
		}
	case mongo.IsTimeout(err):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeTimeout,
			Message: "operation timeout",
			Cause:   err,
		}
	case mongo.IsNetworkError(err):
		return gpatx.Error{
			Type:    gpatx.ErrorTypeConnection,
			Message: "connection error",
			Cause:   err,
		}
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13, 18: // Unauthorized, AuthenticationFailed
			return gpatx.Error{
				Type:    gpatx.ErrorTypeConnection,
				Message: "authentication failed",
				Cause:   err,
			}
		case 14: // TypeMismatch, e.g. $inc on a non-numeric counter
			return gpatx.Error{
				Type:    gpatx.ErrorTypeConstraint,
				Message: "counter value is not numeric",
				Cause:   err,
			}
		}
	}

	return gpatx.Error{
		Type:    gpatx.ErrorTypeDatabase,
		Message: "database operation failed",
		Cause:   err,
	}
}
