package store

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/keyforge-io/keyforge/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/datatypes"
)

// MongoStore persists entities to MongoDB collections. It satisfies the same
// Store contract as the relational backend; uniqueness comes from unique
// indexes and the HWID bind from a filtered update on hwid == null.
type MongoStore struct {
	sellers      *mongo.Collection
	applications *mongo.Collection
	endUsers     *mongo.Collection
}

// sellerDoc is the sellers collection document shape.
type sellerDoc struct {
	Username   string    `bson:"username"`
	Password   string    `bson:"password"`
	OwnerID    string    `bson:"owner_id"`
	TOTPSecret string    `bson:"totp_secret,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// webhookDoc mirrors models.WebhookSettings inside an application document.
type webhookDoc struct {
	URL        string `bson:"url"`
	Enabled    bool   `bson:"enabled"`
	ShowHWID   bool   `bson:"show_hwid"`
	ShowIP     bool   `bson:"show_ip"`
	ShowApp    bool   `bson:"show_app"`
	ShowExpiry bool   `bson:"show_expiry"`
}

// applicationDoc is the applications collection document shape.
type applicationDoc struct {
	AppID     string      `bson:"app_id"`
	AppSecret string      `bson:"app_secret"`
	Name      string      `bson:"name"`
	OwnerID   string      `bson:"owner_id"`
	Webhook   *webhookDoc `bson:"webhook,omitempty"`
	CreatedAt time.Time   `bson:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at"`
}

// endUserDoc is the end_users collection document shape.
type endUserDoc struct {
	ID        string    `bson:"_id"`
	AppID     string    `bson:"app_id"`
	Username  string    `bson:"username"`
	Password  string    `bson:"password"`
	ExpiresAt time.Time `bson:"expires_at"`
	HWID      *string   `bson:"hwid"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore constructs a MongoStore over the given database and ensures
// its unique indexes.
func NewMongoStore(ctx context.Context, database *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		sellers:      database.Collection("sellers"),
		applications: database.Collection("applications"),
		endUsers:     database.Collection("end_users"),
	}
	if errIndexes := s.ensureIndexes(ctx); errIndexes != nil {
		return nil, errIndexes
	}
	return s, nil
}

// ensureIndexes creates the unique indexes backing store-level atomicity.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.sellers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}, Options: unique},
	}); err != nil {
		return err
	}
	if _, err := s.applications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "app_id", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "app_secret", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := s.endUsers.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "app_id", Value: 1}, {Key: "username", Value: 1}},
		Options: unique,
	})
	return err
}

// translateMongo maps driver errors onto store sentinels.
func translateMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return err
	}
}

// sellerFromDoc converts a document into the shared model.
func sellerFromDoc(doc sellerDoc) *models.Seller {
	return &models.Seller{
		Username:   doc.Username,
		Password:   doc.Password,
		OwnerID:    doc.OwnerID,
		TOTPSecret: doc.TOTPSecret,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// applicationFromDoc converts a document into the shared model.
func applicationFromDoc(doc applicationDoc) *models.Application {
	app := &models.Application{
		AppID:     doc.AppID,
		AppSecret: doc.AppSecret,
		Name:      doc.Name,
		OwnerID:   doc.OwnerID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Webhook != nil {
		app.Webhook = datatypes.NewJSONType(models.WebhookSettings{
			URL:        doc.Webhook.URL,
			Enabled:    doc.Webhook.Enabled,
			ShowHWID:   doc.Webhook.ShowHWID,
			ShowIP:     doc.Webhook.ShowIP,
			ShowApp:    doc.Webhook.ShowApp,
			ShowExpiry: doc.Webhook.ShowExpiry,
		})
	}
	return app
}

// endUserFromDoc converts a document into the shared model.
func endUserFromDoc(doc endUserDoc) *models.EndUser {
	return &models.EndUser{
		ID:        doc.ID,
		AppID:     doc.AppID,
		Username:  doc.Username,
		Password:  doc.Password,
		ExpiresAt: doc.ExpiresAt,
		HWID:      doc.HWID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// CreateSeller inserts a seller document.
func (s *MongoStore) CreateSeller(ctx context.Context, seller *models.Seller) error {
	now := time.Now().UTC()
	_, err := s.sellers.InsertOne(ctx, sellerDoc{
		Username:   seller.Username,
		Password:   seller.Password,
		OwnerID:    seller.OwnerID,
		TOTPSecret: seller.TOTPSecret,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return translateMongo(err)
}

// SellerByUsername looks up a seller by unique username.
func (s *MongoStore) SellerByUsername(ctx context.Context, username string) (*models.Seller, error) {
	var doc sellerDoc
	errFind := s.sellers.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return sellerFromDoc(doc), nil
}

// SellerByOwnerID looks up a seller by owner identifier.
func (s *MongoStore) SellerByOwnerID(ctx context.Context, ownerID string) (*models.Seller, error) {
	var doc sellerDoc
	errFind := s.sellers.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return sellerFromDoc(doc), nil
}

// UpdateSellerTOTP stores or clears a seller's TOTP secret.
func (s *MongoStore) UpdateSellerTOTP(ctx context.Context, ownerID, secret string) error {
	res, err := s.sellers.UpdateOne(ctx, bson.M{"owner_id": ownerID}, bson.M{
		"$set": bson.M{"totp_secret": secret, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return translateMongo(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSeller removes a seller, its applications, and their end users.
// Children go first so an interrupted cascade never strands orphans behind a
// missing parent.
func (s *MongoStore) DeleteSeller(ctx context.Context, ownerID string) error {
	cursor, errFind := s.applications.Find(ctx, bson.M{"owner_id": ownerID})
	if errFind != nil {
		return translateMongo(errFind)
	}
	var apps []applicationDoc
	if errAll := cursor.All(ctx, &apps); errAll != nil {
		return translateMongo(errAll)
	}
	appIDs := make([]string, 0, len(apps))
	for _, app := range apps {
		appIDs = append(appIDs, app.AppID)
	}
	if len(appIDs) > 0 {
		if _, errDel := s.endUsers.DeleteMany(ctx, bson.M{"app_id": bson.M{"$in": appIDs}}); errDel != nil {
			return translateMongo(errDel)
		}
	}
	if _, errDel := s.applications.DeleteMany(ctx, bson.M{"owner_id": ownerID}); errDel != nil {
		return translateMongo(errDel)
	}
	res, errDel := s.sellers.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if errDel != nil {
		return translateMongo(errDel)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateApplication inserts an application document.
func (s *MongoStore) CreateApplication(ctx context.Context, app *models.Application) error {
	now := time.Now().UTC()
	doc := applicationDoc{
		AppID:     app.AppID,
		AppSecret: app.AppSecret,
		Name:      app.Name,
		OwnerID:   app.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if settings := app.Webhook.Data(); settings.URL != "" || settings.Enabled {
		doc.Webhook = &webhookDoc{
			URL:        settings.URL,
			Enabled:    settings.Enabled,
			ShowHWID:   settings.ShowHWID,
			ShowIP:     settings.ShowIP,
			ShowApp:    settings.ShowApp,
			ShowExpiry: settings.ShowExpiry,
		}
	}
	_, err := s.applications.InsertOne(ctx, doc)
	return translateMongo(err)
}

// ApplicationByAppID looks up an application by public identifier.
func (s *MongoStore) ApplicationByAppID(ctx context.Context, appID string) (*models.Application, error) {
	var doc applicationDoc
	errFind := s.applications.FindOne(ctx, bson.M{"app_id": appID}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return applicationFromDoc(doc), nil
}

// ApplicationByCredentials resolves the (owner_id, app_secret) pair.
func (s *MongoStore) ApplicationByCredentials(ctx context.Context, ownerID, appSecret string) (*models.Application, error) {
	var doc applicationDoc
	errFind := s.applications.FindOne(ctx, bson.M{
		"owner_id":   ownerID,
		"app_secret": appSecret,
	}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return applicationFromDoc(doc), nil
}

// ApplicationsByOwner lists a seller's applications.
func (s *MongoStore) ApplicationsByOwner(ctx context.Context, ownerID string) ([]models.Application, error) {
	cursor, errFind := s.applications.Find(ctx, bson.M{"owner_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	var docs []applicationDoc
	if errAll := cursor.All(ctx, &docs); errAll != nil {
		return nil, translateMongo(errAll)
	}
	apps := make([]models.Application, 0, len(docs))
	for _, doc := range docs {
		apps = append(apps, *applicationFromDoc(doc))
	}
	return apps, nil
}

// UpdateApplicationWebhook replaces an application's webhook settings.
func (s *MongoStore) UpdateApplicationWebhook(ctx context.Context, appID string, settings models.WebhookSettings) error {
	res, err := s.applications.UpdateOne(ctx, bson.M{"app_id": appID}, bson.M{
		"$set": bson.M{
			"webhook": webhookDoc{
				URL:        settings.URL,
				Enabled:    settings.Enabled,
				ShowHWID:   settings.ShowHWID,
				ShowIP:     settings.ShowIP,
				ShowApp:    settings.ShowApp,
				ShowExpiry: settings.ShowExpiry,
			},
			"updated_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return translateMongo(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApplication removes an application and its end users.
func (s *MongoStore) DeleteApplication(ctx context.Context, appID string) error {
	if _, errDel := s.endUsers.DeleteMany(ctx, bson.M{"app_id": appID}); errDel != nil {
		return translateMongo(errDel)
	}
	res, errDel := s.applications.DeleteOne(ctx, bson.M{"app_id": appID})
	if errDel != nil {
		return translateMongo(errDel)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEndUser inserts a credential; the compound unique index enforces the
// (app_id, username) invariant.
func (s *MongoStore) CreateEndUser(ctx context.Context, user *models.EndUser) error {
	now := time.Now().UTC()
	_, err := s.endUsers.InsertOne(ctx, endUserDoc{
		ID:        user.ID,
		AppID:     user.AppID,
		Username:  user.Username,
		Password:  user.Password,
		ExpiresAt: user.ExpiresAt,
		HWID:      user.HWID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return translateMongo(err)
}

// EndUserByID looks up a credential by identifier.
func (s *MongoStore) EndUserByID(ctx context.Context, id string) (*models.EndUser, error) {
	var doc endUserDoc
	errFind := s.endUsers.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return endUserFromDoc(doc), nil
}

// EndUserByName looks up a credential by application and username.
func (s *MongoStore) EndUserByName(ctx context.Context, appID, username string) (*models.EndUser, error) {
	var doc endUserDoc
	errFind := s.endUsers.FindOne(ctx, bson.M{
		"app_id":   appID,
		"username": username,
	}).Decode(&doc)
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	return endUserFromDoc(doc), nil
}

// EndUsersByApp lists credentials under an application, optionally filtered
// by a case-insensitive username substring.
func (s *MongoStore) EndUsersByApp(ctx context.Context, appID, usernameFilter string) ([]models.EndUser, error) {
	filter := bson.M{"app_id": appID}
	if usernameFilter != "" {
		filter["username"] = bson.M{"$regex": primitive.Regex{
			Pattern: regexp.QuoteMeta(usernameFilter),
			Options: "i",
		}}
	}
	cursor, errFind := s.endUsers.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if errFind != nil {
		return nil, translateMongo(errFind)
	}
	var docs []endUserDoc
	if errAll := cursor.All(ctx, &docs); errAll != nil {
		return nil, translateMongo(errAll)
	}
	users := make([]models.EndUser, 0, len(docs))
	for _, doc := range docs {
		users = append(users, *endUserFromDoc(doc))
	}
	return users, nil
}

// BindHWID performs the first-use bind as a single filtered update; the
// hwid == null predicate makes concurrent binders resolve to one winner.
func (s *MongoStore) BindHWID(ctx context.Context, id, hwid string) (bool, error) {
	res, err := s.endUsers.UpdateOne(ctx,
		bson.M{"_id": id, "hwid": nil},
		bson.M{"$set": bson.M{"hwid": hwid, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, translateMongo(err)
	}
	return res.ModifiedCount == 1, nil
}

// UpdateExpiry persists a new expiry instant.
func (s *MongoStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.endUsers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"expires_at": expiresAt, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return translateMongo(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEndUser removes a credential.
func (s *MongoStore) DeleteEndUser(ctx context.Context, id string) error {
	res, err := s.endUsers.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translateMongo(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks server reachability.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.sellers.Database().Client().Ping(ctx, nil)
}
