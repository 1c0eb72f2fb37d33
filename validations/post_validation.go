package validations

import (
	"context"
	"regexp"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	stagePattern = regexp.MustCompile(`^S[1-5]$`)
	datePattern  = regexp.MustCompile(`^\d{4}[/-]\d{1,2}[/-]\d{1,2}$`)
)

func ValidateGenerate(ctx context.Context, request domainGenerator.GenerateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Count, validation.Min(0), validation.Max(20)),
		validation.Field(&request.Stage, validation.Match(stagePattern).Error("must be one of S1..S5")),
		validation.Field(&request.Memo, validation.RuneLength(0, 2000)),
		validation.Field(&request.StartDate, validation.Match(datePattern).Error("must be YYYY/MM/DD")),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateList(ctx context.Context, request domainPost.ListRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Status, validation.By(func(value interface{}) error {
			s, _ := value.(domainPost.Status)
			if s != "" && !s.Valid() {
				return validation.NewError("validation_status", "unknown status")
			}
			return nil
		})),
		validation.Field(&request.Limit, validation.Min(0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateManage(ctx context.Context, request domainPost.ManageRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.ID, validation.Required),
		validation.Field(&request.Action, validation.Required, validation.In(
			domainPost.ActionDelete,
			domainPost.ActionForcePost,
			domainPost.ActionToggleStatus,
			domainPost.ActionEdit,
		)),
		validation.Field(&request.Draft, validation.When(request.Action == domainPost.ActionEdit, validation.Required)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateConversion(ctx context.Context, request domainTracking.ConversionRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.PostID, validation.Required),
		validation.Field(&request.Revenue, validation.Min(0.0)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}
