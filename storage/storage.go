package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"mural-api/domain"
)

// Partition keys for the singleton partitions. Cards are partitioned by their
// scope tag instead so one board is always a single-partition scan.
const (
	columnsPartition = "board"
	usersPartition   = "user"
)

const (
	defaultQueueConcurrency = 10
	queuePerCPU             = 10
	maxQueueConcurrency     = 64
)

// ErrNotFound is returned when a row the caller asked for does not exist.
var ErrNotFound = errors.New("storage: not found")

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to the columns, cards and users tables plus the
// board event queue.
type Storage struct {
	columnsTable     *aztables.Client
	cardsTable       *aztables.Client
	usersTable       *aztables.Client
	eventQueue       queueClient
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr, columnsTable, cardsTable, usersTable, eventQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		columnsTable:     svc.NewClient(columnsTable),
		cardsTable:       svc.NewClient(cardsTable),
		usersTable:       svc.NewClient(usersTable),
		eventQueue:       eq,
		queueConcurrency: queueConcurrencyForCPU(runtime.NumCPU()),
	}, nil
}

func queueConcurrencyForCPU(cpu int) int {
	if cpu <= 0 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		return maxQueueConcurrency
	}
	return n
}

type columnEntity struct {
	aztables.Entity
	Title string `json:"Title"`
	Order int    `json:"Order"`
}

type cardEntity struct {
	aztables.Entity
	Content  string `json:"Content"`
	ColumnID string `json:"ColumnID"`
	Order    int    `json:"Order"`
}

type userEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	Email        string `json:"Email"`
	Login        string `json:"Login"`
	Department   string `json:"Department"`
	PasswordHash string `json:"PasswordHash"`
}

// FetchColumns retrieves every board column ordered ascending. Table storage
// cannot order results server-side, so the sort happens here.
func (s *Storage) FetchColumns(ctx context.Context) ([]domain.Column, error) {
	filter := "PartitionKey eq '" + columnsPartition + "'"
	pager := s.columnsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	columns := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			columns = append(columns, domain.Column{
				ID:    ent.RowKey,
				Title: ent.Title,
				Order: ent.Order,
				Cards: []domain.Card{},
			})
		}
	}
	sort.Slice(columns, func(i, j int) bool { return columns[i].Order < columns[j].Order })
	return columns, nil
}

// FetchCards retrieves all cards for the given scope tag ordered ascending.
func (s *Storage) FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error) {
	filter := "PartitionKey eq '" + escapeODataString(scopeTag) + "'"
	pager := s.cardsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	cards := []domain.Card{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			cards = append(cards, domain.Card{
				ID:       ent.RowKey,
				Content:  ent.Content,
				ColumnID: ent.ColumnID,
				Order:    ent.Order,
				ScopeTag: ent.PartitionKey,
			})
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].Order < cards[j].Order })
	return cards, nil
}

// InsertCard persists a new card and returns it with the generated id.
func (s *Storage) InsertCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	ent := cardEntity{
		Entity:   aztables.Entity{PartitionKey: card.ScopeTag, RowKey: card.ID},
		Content:  card.Content,
		ColumnID: card.ColumnID,
		Order:    card.Order,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.Card{}, err
	}
	if _, err := s.cardsTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// UpdateCardContent rewrites a card's text.
func (s *Storage) UpdateCardContent(ctx context.Context, scopeTag, id, content string) error {
	return s.mergeCard(ctx, map[string]any{
		"PartitionKey": scopeTag,
		"RowKey":       id,
		"Content":      content,
	})
}

// UpdateCardPosition rewrites a card's column membership and order. Updates
// are last-write-wins; there is no version token guarding rapid sequential
// drags.
func (s *Storage) UpdateCardPosition(ctx context.Context, scopeTag, id, columnID string, order int) error {
	return s.mergeCard(ctx, map[string]any{
		"PartitionKey": scopeTag,
		"RowKey":       id,
		"ColumnID":     columnID,
		"Order":        order,
	})
}

func (s *Storage) mergeCard(ctx context.Context, patch map[string]any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.cardsTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return mapNotFound(err)
}

// DeleteCard removes a card row.
func (s *Storage) DeleteCard(ctx context.Context, scopeTag, id string) error {
	_, err := s.cardsTable.DeleteEntity(ctx, scopeTag, id, nil)
	return mapNotFound(err)
}

// InsertUser persists a new account and returns it with the generated id.
// Login is normalized to lowercase so lookups are case-insensitive.
func (s *Storage) InsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Login = strings.ToLower(strings.TrimSpace(user.Login))
	ent := userEntity{
		Entity:       aztables.Entity{PartitionKey: usersPartition, RowKey: user.ID},
		Name:         user.Name,
		Email:        user.Email,
		Login:        user.Login,
		Department:   user.Department,
		PasswordHash: user.PasswordHash,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.usersTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// FetchUser retrieves an account by id.
func (s *Storage) FetchUser(ctx context.Context, id string) (domain.User, error) {
	resp, err := s.usersTable.GetEntity(ctx, usersPartition, id, nil)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return decodeUserEntity(resp.Value)
}

// FetchUserByLogin retrieves an account by its lowercase login.
func (s *Storage) FetchUserByLogin(ctx context.Context, login string) (domain.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	return s.findUser(ctx, "Login eq '"+escapeODataString(login)+"'")
}

// FetchUserByEmail retrieves an account by email, used for uniqueness checks.
func (s *Storage) FetchUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findUser(ctx, "Email eq '"+escapeODataString(email)+"'")
}

func (s *Storage) findUser(ctx context.Context, predicate string) (domain.User, error) {
	filter := "PartitionKey eq '" + usersPartition + "' and " + predicate
	top := int32(1)
	pager := s.usersTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.User{}, err
		}
		if len(resp.Entities) > 0 {
			return decodeUserEntity(resp.Entities[0])
		}
	}
	return domain.User{}, ErrNotFound
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.RowKey,
		Name:         ent.Name,
		Email:        ent.Email,
		Login:        ent.Login,
		Department:   ent.Department,
		PasswordHash: ent.PasswordHash,
	}, nil
}

// EnqueueEvents sends the given events to the board event queue, fanning out
// up to queueConcurrency sends at a time.
func (s *Storage) EnqueueEvents(ctx context.Context, scopeTag string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	concurrency := s.queueConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, len(events))
	var wg sync.WaitGroup

	for _, ev := range events {
		env := domain.EventEnvelope{ScopeTag: scopeTag, Event: ev}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(payload string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.eventQueue.EnqueueMessage(ctx, payload, nil); err != nil {
				errCh <- err
			}
		}(string(data))
	}
	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok {
		return fmt.Errorf("enqueue events: %w", err)
	}
	return nil
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrNotFound, respErr.ErrorCode)
	}
	return err
}

func escapeODataString(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
