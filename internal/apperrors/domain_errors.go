package apperrors

var (
	ErrUnauthenticated = Unauthenticated("authentication required")
	ErrAdminOnly       = Forbidden("admin capability required")
	ErrRateLimited     = New(CodeRateLimited, "rate limit exceeded")

	ErrNotFriends       = Forbidden("users are not allowed to exchange messages")
	ErrAlreadyFriends   = Conflict("users are already friends")
	ErrDuplicateRequest = Conflict("chat request already pending")
	ErrRequestAccepted  = Conflict("chat request already accepted")
	ErrNoPendingRequest = NotFound("no pending chat request")
	ErrSelfRequest      = InvalidArg("cannot send a chat request to yourself")
	ErrSelfRelationship = InvalidArg("self relationships are not allowed")

	ErrMessageNotFound = NotFound("message not found")
	ErrNotMessageOwner = Forbidden("only the sender can modify this message")
	ErrNotParticipant  = Forbidden("not a participant of this message")
	ErrInvalidEnvelope = InvalidArg("iv, ciphertext and auth tag are required")
	ErrInvalidEmoji    = InvalidArg("emoji is required")
	ErrReactionMissing = NotFound("reaction not found")

	ErrInvalidPair      = InvalidArg("a conversation needs two distinct users")
	ErrVaultNotFound    = NotFound("no active key material for user")
	ErrVaultForbidden   = Forbidden("private key material is only readable by its owner")
	ErrDecryptionFailed = New(CodeDecryptionFailure, "stored key material could not be decrypted")
)
