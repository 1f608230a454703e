// Package mongo implements the scribe stores on MongoDB, the primary
// backend for the service.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/panyam/scribe"
)

const usersCollection = "users"

type userDoc struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty"`
	Name                   string             `bson:"name"`
	Email                  string             `bson:"email"`
	Phone                  string             `bson:"phone,omitempty"`
	Password               string             `bson:"password,omitempty"`
	DateOfBirth            *time.Time         `bson:"date_of_birth,omitempty"`
	AccountVerified        bool               `bson:"account_verified"`
	VerificationCode       int                `bson:"verification_code,omitempty"`
	VerificationCodeExpire *time.Time         `bson:"verification_code_expire,omitempty"`
	ResetPasswordToken     string             `bson:"reset_password_token,omitempty"`
	ResetPasswordExpire    *time.Time         `bson:"reset_password_expire,omitempty"`
	LoginMethod            string             `bson:"login_method,omitempty"`
	CreatedAt              time.Time          `bson:"created_at"`
	UpdatedAt              time.Time          `bson:"updated_at"`
}

func (d *userDoc) toUser() *scribe.User {
	return &scribe.User{
		ID:                     d.ID.Hex(),
		Name:                   d.Name,
		Email:                  d.Email,
		Phone:                  d.Phone,
		Password:               d.Password,
		DateOfBirth:            d.DateOfBirth,
		AccountVerified:        d.AccountVerified,
		VerificationCode:       d.VerificationCode,
		VerificationCodeExpire: d.VerificationCodeExpire,
		ResetPasswordToken:     d.ResetPasswordToken,
		ResetPasswordExpire:    d.ResetPasswordExpire,
		LoginMethod:            d.LoginMethod,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// UserStore implements scribe.UserStore on a users collection.
type UserStore struct {
	col    *mongo.Collection
	logger *zap.Logger
}

// NewUserStore ensures the collection indexes and returns the store. The
// unique email index is partial so that multiple unverified registration
// attempts may coexist while verified identities stay exclusive.
func NewUserStore(db *mongo.Database, logger *zap.Logger) *UserStore {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection(usersCollection)
	verifiedOnly := bson.D{{Key: "account_verified", Value: true}}
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(verifiedOnly),
		},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).
				SetPartialFilterExpression(verifiedOnly),
		},
		{Keys: bson.D{{Key: "reset_password_token", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn("failed to ensure user indexes (may already exist)", zap.Error(err))
	}

	return &UserStore{col: col, logger: logger.Named("UserStore")}
}

func isDuplicateKey(err error) bool {
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}

func (s *UserStore) Create(ctx context.Context, u *scribe.User) (*scribe.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	doc := &userDoc{
		ID:          primitive.NewObjectID(),
		Name:        u.Name,
		Email:       u.Email,
		Phone:       u.Phone,
		Password:    u.Password,
		DateOfBirth: u.DateOfBirth,
		LoginMethod: u.LoginMethod,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if isDuplicateKey(err) {
			s.logger.Warn("duplicate email on user create", zap.String("email", u.Email))
			return nil, scribe.ErrDuplicateEmail
		}
		s.logger.Error("failed to create user", zap.String("email", u.Email), zap.Error(err))
		return nil, err
	}
	out := *u
	out.ID = doc.ID.Hex()
	out.CreatedAt = now
	out.UpdatedAt = now
	out.AccountVerified = false
	return &out, nil
}

func (s *UserStore) Save(ctx context.Context, u *scribe.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return scribe.ErrMalformedID
	}

	set := bson.M{
		"name":             u.Name,
		"email":            u.Email,
		"phone":            u.Phone,
		"account_verified": u.AccountVerified,
		"updated_at":       time.Now(),
	}
	if u.DateOfBirth != nil {
		set["date_of_birth"] = u.DateOfBirth
	}
	if u.LoginMethod != "" {
		set["login_method"] = u.LoginMethod
	}
	if u.Password != "" {
		set["password"] = u.Password
	}
	update := bson.M{"$set": set}
	unset := bson.M{}
	if u.VerificationCode == 0 {
		unset["verification_code"] = ""
		unset["verification_code_expire"] = ""
	} else {
		set["verification_code"] = u.VerificationCode
		set["verification_code_expire"] = u.VerificationCodeExpire
	}
	if u.ResetPasswordToken == "" {
		unset["reset_password_token"] = ""
		unset["reset_password_expire"] = ""
	} else {
		set["reset_password_token"] = u.ResetPasswordToken
		set["reset_password_expire"] = u.ResetPasswordExpire
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if isDuplicateKey(err) {
			return scribe.ErrDuplicateEmail
		}
		s.logger.Error("failed to save user", zap.String("userID", u.ID), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return scribe.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) SaveFields(ctx context.Context, u *scribe.User, fields ...string) error {
	if err := u.ValidateFields(fields...); err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return scribe.ErrMalformedID
	}

	set := bson.M{"updated_at": time.Now()}
	unset := bson.M{}
	for _, f := range fields {
		switch f {
		case "verificationCode":
			if u.VerificationCode == 0 {
				unset["verification_code"] = ""
				unset["verification_code_expire"] = ""
			} else {
				set["verification_code"] = u.VerificationCode
				set["verification_code_expire"] = u.VerificationCodeExpire
			}
		case "accountVerified":
			set["account_verified"] = u.AccountVerified
		case "loginMethod":
			set["login_method"] = u.LoginMethod
		case "resetPasswordToken":
			if u.ResetPasswordToken == "" {
				unset["reset_password_token"] = ""
				unset["reset_password_expire"] = ""
			} else {
				set["reset_password_token"] = u.ResetPasswordToken
				set["reset_password_expire"] = u.ResetPasswordExpire
			}
		case "password":
			set["password"] = u.Password
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		s.logger.Error("failed to save user fields", zap.String("userID", u.ID), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return scribe.ErrUserNotFound
	}
	return nil
}

// noPassword mirrors the schema-level "select: false" on the password
// field: default lookups never load the hash.
var noPassword = options.FindOne().SetProjection(bson.M{"password": 0})

func (s *UserStore) FindByID(ctx context.Context, id string) (*scribe.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, scribe.ErrMalformedID
	}
	var doc userDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}, noPassword).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, scribe.ErrUserNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func identityFilter(email, phone string, verified bool) bson.M {
	var or []bson.M
	if email != "" {
		or = append(or, bson.M{"email": email, "account_verified": verified})
	}
	if phone != "" {
		or = append(or, bson.M{"phone": phone, "account_verified": verified})
	}
	if len(or) == 0 {
		// Match nothing rather than everything when both contacts are empty.
		return bson.M{"_id": primitive.NilObjectID}
	}
	return bson.M{"$or": or}
}

func (s *UserStore) FindVerified(ctx context.Context, email, phone string) (*scribe.User, error) {
	var doc userDoc
	err := s.col.FindOne(ctx, identityFilter(email, phone, true), noPassword).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *UserStore) FindVerifiedByEmail(ctx context.Context, email string, withPassword bool) (*scribe.User, error) {
	opts := noPassword
	if withPassword {
		opts = options.FindOne()
	}
	var doc userDoc
	err := s.col.FindOne(ctx, bson.M{"email": email, "account_verified": true}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (s *UserStore) FindUnverified(ctx context.Context, email, phone string) ([]*scribe.User, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := s.col.Find(ctx, identityFilter(email, phone, false), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]*scribe.User, len(docs))
	for i, doc := range docs {
		users[i] = doc.toUser()
	}
	return users, nil
}

func (s *UserStore) DeleteUnverifiedExcept(ctx context.Context, keepID, email, phone string) error {
	oid, err := primitive.ObjectIDFromHex(keepID)
	if err != nil {
		return scribe.ErrMalformedID
	}
	filter := identityFilter(email, phone, false)
	filter["_id"] = bson.M{"$ne": oid}
	result, err := s.col.DeleteMany(ctx, filter)
	if err != nil {
		s.logger.Error("failed to purge unverified duplicates", zap.String("email", email), zap.Error(err))
		return err
	}
	if result.DeletedCount > 0 {
		s.logger.Info("purged superseded unverified records",
			zap.Int64("count", result.DeletedCount),
			zap.String("email", email))
	}
	return nil
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*scribe.User, error) {
	var doc userDoc
	err := s.col.FindOne(ctx, bson.M{
		"reset_password_token": hash,
		"reset_password_expire": bson.M{"$gt": now},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}
