package api

// Service accessors group Client methods by resource.

type TagsService struct{ *Client }

type ConversationsService struct{ *Client }

type FacebookService struct{ *Client }

type PagesService struct{ *Client }

type UsersService struct{ *Client }

func (c *Client) Tags() TagsService { return TagsService{c} }

func (c *Client) Conversations() ConversationsService { return ConversationsService{c} }

func (c *Client) Facebook() FacebookService { return FacebookService{c} }

func (c *Client) Pages() PagesService { return PagesService{c} }

func (c *Client) Users() UsersService { return UsersService{c} }
