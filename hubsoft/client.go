/*
Copyright 2024 NetPlay Hub Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package hubsoft is the client stack for the HubSoft ERP: a raw REST
// client, the token manager, the outbound rate limiter and the cached
// facade that composes them. Everything the rest of the application
// knows about the ERP goes through this package.
package hubsoft

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/netplayhub/hubsync/config"
	"github.com/netplayhub/hubsync/internal/apierror"
	"github.com/netplayhub/hubsync/internal/request"
	"github.com/netplayhub/hubsync/model"
)

// Client is the raw HubSoft REST client. It performs single HTTP calls
// and maps transport and status failures to the typed error taxonomy.
// It applies no rate limiting and no caching; that is the facade's job.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration
}

func NewClient(cfg *config.Configuration) *Client {
	return &Client{
		baseURL:      cfg.HubSoft.BaseUrl,
		clientID:     cfg.HubSoft.ClientId,
		clientSecret: cfg.HubSoft.ClientSecret,
		timeout:      cfg.HubSoftTimeout(),
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ClientRecord is a customer as HubSoft knows them, used for community
// verification lookups.
type ClientRecord struct {
	ClientID  string `json:"client_id"`
	Name      string `json:"name"`
	Document  string `json:"document"`
	Status    string `json:"status"`
	PlanName  string `json:"plan_name"`
	Contracts []struct {
		ContractID string `json:"contract_id"`
		Status     string `json:"status"`
	} `json:"contracts"`
}

// TicketRecord is a support ticket as returned by HubSoft.
type TicketRecord struct {
	Protocol         string `json:"protocol"`
	Status           string `json:"status"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

// CreateTicketRequest is the create-ticket payload. CorrelationToken is
// the locally issued protocol; HubSoft treats a repeated token as the
// same logical request.
type CreateTicketRequest struct {
	ClientRef        string `json:"client_ref"`
	Subject          string `json:"subject"`
	Description      string `json:"description"`
	CorrelationToken string `json:"correlation_token"`
}

// TicketPage is one page of a batch status query.
type TicketPage struct {
	Tickets  []TicketRecord `json:"tickets"`
	Page     int            `json:"page"`
	LastPage int            `json:"last_page"`
}

// Authenticate obtains a fresh bearer token from the ERP auth endpoint.
func (c *Client) Authenticate(ctx context.Context) (*model.Token, error) {
	body := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}
	payload, err := request.ToJsonReq(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", payload)
	if err != nil {
		return nil, err
	}

	var auth authResponse
	resp, err := request.Call(req, c.timeout, &auth)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrAuthFailed, "hubsoft token request failed", err)
	}
	if resp.StatusCode != http.StatusOK || auth.AccessToken == "" {
		return nil, apierror.NewAPIError(apierror.ErrAuthFailed,
			fmt.Sprintf("hubsoft token request rejected with status %d", resp.StatusCode), nil)
	}

	return &model.Token{
		AccessToken: auth.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second),
	}, nil
}

// Ping checks ERP reachability. It is the one call allowed outside the
// rate-limited facade, so the health loop is never delayed by queued
// work.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/integration/health", nil)
	if err != nil {
		return err
	}

	resp, err := request.Call(req, c.timeout, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrTransientApi, "hubsoft unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apierror.NewAPIError(apierror.ErrTransientApi,
			fmt.Sprintf("hubsoft health endpoint returned %d", resp.StatusCode), nil)
	}
	return nil
}

// LookupClient fetches a customer record by CPF/CNPJ document.
func (c *Client) LookupClient(ctx context.Context, token, document string) (*ClientRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/integration/client?document=%s", c.baseURL, url.QueryEscape(document))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.SetBearer(req, token)

	var record ClientRecord
	if err := c.do(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateTicket opens a support ticket in HubSoft.
func (c *Client) CreateTicket(ctx context.Context, token string, ticket CreateTicketRequest) (*TicketRecord, error) {
	payload, err := request.ToJsonReq(ticket)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/integration/support/ticket", payload)
	if err != nil {
		return nil, err
	}
	request.SetBearer(req, token)

	var record TicketRecord
	if err := c.do(req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindTicketByCorrelation looks a ticket up by its correlation token.
// Used as the pre-check that keeps reconciliation idempotent. A miss is
// reported as nil, nil.
func (c *Client) FindTicketByCorrelation(ctx context.Context, token, correlationToken string) (*TicketRecord, error) {
	endpoint := fmt.Sprintf("%s/api/v1/integration/support/ticket?correlation_token=%s",
		c.baseURL, url.QueryEscape(correlationToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.SetBearer(req, token)

	var record TicketRecord
	err = c.do(req, &record)
	if apierror.Is(err, apierror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateTicketStatus moves a remote ticket to a new status (e.g. close
// on customer confirmation).
func (c *Client) UpdateTicketStatus(ctx context.Context, token, protocol, status string) error {
	payload, err := request.ToJsonReq(map[string]string{"status": status})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v1/integration/support/ticket/%s", c.baseURL, url.PathEscape(protocol))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return err
	}
	request.SetBearer(req, token)

	return c.do(req, nil)
}

// ListTickets fetches one page of ticket statuses for the given remote
// protocols. Batch refresh walks the pages instead of issuing one call
// per ticket.
func (c *Client) ListTickets(ctx context.Context, token string, protocols []string, page int) (*TicketPage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/integration/support/tickets?protocols=%s&page=%d",
		c.baseURL, url.QueryEscape(strings.Join(protocols, ",")), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.SetBearer(req, token)

	var result TicketPage
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do runs a prepared request and maps failures onto the error taxonomy:
// 401/403 become auth failures, 429 a rate limit, 5xx and transport
// errors transient, 404 not found.
func (c *Client) do(req *http.Request, response interface{}) error {
	resp, err := request.Call(req, c.timeout, response)
	if err != nil {
		if resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			// 2xx with an undecodable body
			return apierror.NewAPIError(apierror.ErrTransientApi, "hubsoft returned malformed response", err)
		}
		if resp == nil {
			return apierror.NewAPIError(apierror.ErrTransientApi, "hubsoft request failed", err)
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apierror.NewAPIError(apierror.ErrAuthFailed,
			fmt.Sprintf("hubsoft rejected credentials with status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apierror.NewAPIError(apierror.ErrRateLimitExceeded, "hubsoft throttled the request", nil)
	case resp.StatusCode == http.StatusNotFound:
		return apierror.NewAPIError(apierror.ErrNotFound, "hubsoft resource not found", nil)
	case resp.StatusCode == http.StatusConflict:
		return apierror.NewAPIError(apierror.ErrConflict, "hubsoft reported a conflict", nil)
	case resp.StatusCode >= 500:
		return apierror.NewAPIError(apierror.ErrTransientApi,
			fmt.Sprintf("hubsoft server error %d", resp.StatusCode), nil)
	default:
		return apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("hubsoft rejected the request with status %d", resp.StatusCode), nil)
	}
}
